package pgstore

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"serialization": {&pgconn.PgError{Code: "40001"}, true},
		"deadlock":      {errors.Wrap(&pgconn.PgError{Code: "40P01"}, "decrement"), true},
		"unique":        {&pgconn.PgError{Code: "23505"}, false},
		"plain":         {errors.New("conn reset"), false},
		"nil":           {nil, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryable(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: uniqueOrderConstraint}))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "voucher_order_pkey"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
}

func TestBackoffGrowsWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		want := time.Duration(1<<attempt) * base
		got := backoff(attempt, base)
		assert.GreaterOrEqual(t, got, want)
		assert.Less(t, got, want+want/5+time.Nanosecond)
	}
}

func TestNewDefaults(t *testing.T) {
	s := New(nil, Options{})
	assert.Equal(t, 3, s.maxRetries)
	assert.Equal(t, 100*time.Millisecond, s.base)
	assert.NotNil(t, s.log)
}
