package seckill_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/idgen"
	"github.com/unkn0wn-root/flashcache/internal/clock"
	"github.com/unkn0wn-root/flashcache/internal/mocks"
	"github.com/unkn0wn-root/flashcache/lock"
	"github.com/unkn0wn-root/flashcache/seckill"
	"github.com/unkn0wn-root/flashcache/seckill/memstore"
)

var now = time.Date(2024, 11, 11, 12, 0, 0, 0, time.UTC)

const offerID int64 = 100

func openOffer(stock int) seckill.Offer {
	return seckill.Offer{ID: offerID, BeginTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Stock: stock}
}

func newGenerator(t *testing.T) *idgen.Generator {
	t.Helper()
	g, err := idgen.New(idgen.NewLocalCounter(0, 0), "app", clock.NewMockClock(now))
	require.NoError(t, err)
	return g
}

func newCoordinator(t *testing.T, store seckill.Store, locker lock.Locker, tweak func(*seckill.Options)) *seckill.Coordinator {
	t.Helper()
	opts := seckill.Options{
		Namespace: "app",
		Store:     store,
		IDs:       newGenerator(t),
		Locker:    locker,
		Clock:     clock.NewMockClock(now),
		Backoff:   lock.Backoff{Attempts: 200, Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
	if tweak != nil {
		tweak(&opts)
	}
	c, err := seckill.New(opts)
	require.NoError(t, err)
	return c
}

type outcome struct {
	res seckill.Result
	err error
}

func purchaseAll(c *seckill.Coordinator, users []int64) []outcome {
	out := make([]outcome, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u int64) {
			defer wg.Done()
			res, err := c.Purchase(context.Background(), u, offerID)
			out[i] = outcome{res, err}
		}(i, u)
	}
	wg.Wait()
	return out
}

func TestStockIsNeverOversold(t *testing.T) {
	const stock, users = 5, 60
	store := memstore.New()
	store.PutOffer(openOffer(stock))
	c := newCoordinator(t, store, lock.NewLocal(nil), nil)

	ids := make([]int64, users)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	results := purchaseAll(c, ids)

	orderIDs := map[int64]bool{}
	var outOfStock int
	for _, r := range results {
		require.NoError(t, r.err)
		switch r.res.Status {
		case seckill.Committed:
			require.NotZero(t, r.res.OrderID)
			require.False(t, orderIDs[r.res.OrderID], "order id reused")
			orderIDs[r.res.OrderID] = true
		case seckill.OutOfStock:
			outOfStock++
		default:
			t.Fatalf("unexpected status %s", r.res.Status)
		}
	}
	assert.Len(t, orderIDs, stock)
	assert.Equal(t, users-stock, outOfStock)

	o, err := store.Offer(context.Background(), offerID)
	require.NoError(t, err)
	assert.Equal(t, 0, o.Stock)
	assert.Len(t, store.Orders(offerID), stock)
}

func TestSameUserBuysOnce(t *testing.T) {
	store := memstore.New()
	store.PutOffer(openOffer(10))
	c := newCoordinator(t, store, lock.NewLocal(nil), nil)

	const attempts = 8
	users := make([]int64, attempts)
	for i := range users {
		users[i] = 42
	}
	results := purchaseAll(c, users)

	var committed, dup int
	for _, r := range results {
		require.NoError(t, r.err)
		switch r.res.Status {
		case seckill.Committed:
			committed++
		case seckill.AlreadyPurchased:
			dup++
		default:
			t.Fatalf("unexpected status %s", r.res.Status)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, attempts-1, dup)

	o, _ := store.Offer(context.Background(), offerID)
	assert.Equal(t, 9, o.Stock)
}

func TestLastUnitThenExhaustedSkipsLock(t *testing.T) {
	store := memstore.New()
	store.PutOffer(openOffer(1))
	c := newCoordinator(t, store, lock.NewLocal(nil), nil)

	results := purchaseAll(c, []int64{1, 2})
	statuses := []seckill.Status{results[0].res.Status, results[1].res.Status}
	assert.ElementsMatch(t, []seckill.Status{seckill.Committed, seckill.OutOfStock}, statuses)
	for _, r := range results {
		require.NoError(t, r.err)
		if r.res.Status == seckill.Committed {
			assert.Positive(t, r.res.OrderID)
		}
	}

	// no EXPECT: any lock call fails the test
	ctrl := gomock.NewController(t)
	strict := newCoordinator(t, store, mocks.NewMockLocker(ctrl), nil)
	for _, user := range []int64{1, 2} {
		res, err := strict.Purchase(context.Background(), user, offerID)
		require.NoError(t, err)
		assert.Equal(t, seckill.OutOfStock, res.Status)
	}
}

func TestTimeWindowRejectsWithoutLockOrStock(t *testing.T) {
	cases := map[string]struct {
		offer seckill.Offer
		want  seckill.Status
	}{
		"not started": {
			offer: seckill.Offer{ID: offerID, BeginTime: now.Add(time.Minute), EndTime: now.Add(time.Hour), Stock: 3},
			want:  seckill.NotStarted,
		},
		"ended": {
			offer: seckill.Offer{ID: offerID, BeginTime: now.Add(-time.Hour), EndTime: now.Add(-time.Second), Stock: 3},
			want:  seckill.Ended,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			store.EXPECT().Offer(gomock.Any(), offerID).Return(tc.offer, nil)
			c := newCoordinator(t, store, mocks.NewMockLocker(ctrl), nil)

			res, err := c.Purchase(context.Background(), 1, offerID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.Zero(t, res.OrderID)
		})
	}
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	store := memstore.New()
	store.PutOffer(seckill.Offer{ID: offerID, BeginTime: now, EndTime: now, Stock: 1})
	c := newCoordinator(t, store, lock.NewLocal(nil), nil)

	res, err := c.Purchase(context.Background(), 1, offerID)
	require.NoError(t, err)
	assert.Equal(t, seckill.Committed, res.Status)
}

func TestUnknownOffer(t *testing.T) {
	c := newCoordinator(t, memstore.New(), lock.NewLocal(nil), nil)
	res, err := c.Purchase(context.Background(), 1, 404)
	assert.True(t, errors.Is(err, seckill.ErrOfferNotFound))
	assert.NotEqual(t, seckill.Committed, res.Status)
}

func TestBusyWhenUserLockIsHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Offer(gomock.Any(), offerID).Return(openOffer(1), nil)
	locker := mocks.NewMockLocker(ctrl)
	locker.EXPECT().TryAcquire(gomock.Any(), "app:lock:order:7", gomock.Any()).Return("", false, nil).Times(3)

	c := newCoordinator(t, store, locker, func(o *seckill.Options) {
		o.Backoff = lock.Backoff{Attempts: 3, Base: time.Millisecond}
	})
	res, err := c.Purchase(context.Background(), 7, offerID)
	require.NoError(t, err)
	assert.Equal(t, seckill.Busy, res.Status)
	assert.True(t, errors.Is(res.Err(), seckill.ErrBusy))
}

// expectLock grants the per-user lock once and expects it back.
func expectLock(locker *mocks.MockLocker, key string) {
	gomock.InOrder(
		locker.EXPECT().TryAcquire(gomock.Any(), key, 10*time.Second).Return("tok", true, nil),
		locker.EXPECT().Release(gomock.Any(), key, "tok").Return(true, nil),
	)
}

// runWith makes the mock store run the transaction function against tx.
func runWith(store *mocks.MockStore, tx seckill.Tx) *gomock.Call {
	return store.EXPECT().Within(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context, seckill.Tx) error) error {
			return fn(ctx, tx)
		})
}

func TestUniqueIndexCatchesDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockTx(ctrl)
	locker := mocks.NewMockLocker(ctrl)
	ids := mocks.NewMockIDSource(ctrl)

	store.EXPECT().Offer(gomock.Any(), offerID).Return(openOffer(5), nil)
	expectLock(locker, "app:lock:order:9")
	runWith(store, tx)
	tx.EXPECT().OrderExists(gomock.Any(), int64(9), offerID).Return(false, nil)
	tx.EXPECT().DecrementStock(gomock.Any(), offerID).Return(int64(1), nil)
	ids.EXPECT().NextID(gomock.Any(), seckill.OrderPrefix).Return(uint64(77), nil)
	tx.EXPECT().InsertOrder(gomock.Any(), gomock.Any()).Return(errors.Wrap(seckill.ErrDuplicateOrder, "23505"))

	c := newCoordinator(t, store, locker, func(o *seckill.Options) { o.IDs = ids })
	res, err := c.Purchase(context.Background(), 9, offerID)
	require.NoError(t, err)
	assert.Equal(t, seckill.AlreadyPurchased, res.Status)
}

func TestZeroRowsDecrementIsOutOfStock(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockTx(ctrl)
	locker := mocks.NewMockLocker(ctrl)

	// pre-check saw stock, another process took it before the decrement
	store.EXPECT().Offer(gomock.Any(), offerID).Return(openOffer(1), nil)
	expectLock(locker, "app:lock:order:3")
	runWith(store, tx)
	tx.EXPECT().OrderExists(gomock.Any(), int64(3), offerID).Return(false, nil)
	tx.EXPECT().DecrementStock(gomock.Any(), offerID).Return(int64(0), nil)

	c := newCoordinator(t, store, locker, nil)
	res, err := c.Purchase(context.Background(), 3, offerID)
	require.NoError(t, err)
	assert.Equal(t, seckill.OutOfStock, res.Status)
}

func TestStoreFailureIsTransientAndReleasesLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	locker := mocks.NewMockLocker(ctrl)

	store.EXPECT().Offer(gomock.Any(), offerID).Return(openOffer(1), nil)
	expectLock(locker, "app:lock:order:4")
	store.EXPECT().Within(gomock.Any(), gomock.Any()).Return(errors.New("conn reset"))

	c := newCoordinator(t, store, locker, nil)
	res, err := c.Purchase(context.Background(), 4, offerID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flashcache.ErrTransient))
	assert.Equal(t, seckill.Unknown, res.Status)
	assert.Error(t, res.Err())
}

func TestPublishAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	store := memstore.New()
	store.PutOffer(openOffer(2))

	var published seckill.Order
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, o seckill.Order) error {
		published = o
		return errors.New("broker down")
	})

	c := newCoordinator(t, store, lock.NewLocal(nil), func(o *seckill.Options) { o.Publisher = pub })
	res, err := c.Purchase(context.Background(), 11, offerID)
	require.NoError(t, err, "publish failure does not undo the order")
	assert.Equal(t, seckill.Committed, res.Status)
	assert.Equal(t, res.OrderID, published.ID)
	assert.Equal(t, int64(11), published.UserID)
	assert.Equal(t, now, published.CreatedAt)
}

type statusCounter struct {
	mu   sync.Mutex
	seen map[seckill.Status]int
}

func (s *statusCounter) Observe(st seckill.Status, _ time.Duration) {
	s.mu.Lock()
	s.seen[st]++
	s.mu.Unlock()
}

func TestObserverSeesOutcomes(t *testing.T) {
	store := memstore.New()
	store.PutOffer(openOffer(1))
	obs := &statusCounter{seen: map[seckill.Status]int{}}
	c := newCoordinator(t, store, lock.NewLocal(nil), func(o *seckill.Options) { o.Observer = obs })

	for _, u := range []int64{1, 1, 2} {
		_, err := c.Purchase(context.Background(), u, offerID)
		require.NoError(t, err)
	}
	assert.Equal(t, map[seckill.Status]int{seckill.Committed: 1, seckill.OutOfStock: 2}, obs.seen)
}

func TestOrderIDDecomposes(t *testing.T) {
	store := memstore.New()
	store.PutOffer(openOffer(1))
	c := newCoordinator(t, store, lock.NewLocal(nil), nil)

	res, err := c.Purchase(context.Background(), 1, offerID)
	require.NoError(t, err)
	issued, seq := idgen.Decompose(uint64(res.OrderID))
	assert.True(t, issued.Equal(now))
	assert.Equal(t, uint64(1), seq)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, seckill.Result{Status: seckill.Committed}.Err())
	assert.ErrorIs(t, seckill.Result{Status: seckill.NotStarted}.Err(), seckill.ErrNotStarted)
	assert.ErrorIs(t, seckill.Result{Status: seckill.Ended}.Err(), seckill.ErrEnded)
	assert.ErrorIs(t, seckill.Result{Status: seckill.OutOfStock}.Err(), seckill.ErrOutOfStock)
	assert.ErrorIs(t, seckill.Result{Status: seckill.AlreadyPurchased}.Err(), seckill.ErrAlreadyPurchased)
	assert.Equal(t, "already_purchased", seckill.AlreadyPurchased.String())
	assert.Equal(t, "unknown", seckill.Status(99).String())
	assert.Equal(t, seckill.Unknown, seckill.Result{}.Status)
	assert.Error(t, seckill.Result{}.Err())
}

func TestNewValidates(t *testing.T) {
	_, err := seckill.New(seckill.Options{Namespace: "app"})
	assert.Error(t, err)
}
