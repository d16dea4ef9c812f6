// Package kafkapub publishes committed seckill orders to a Kafka topic.
// Publishing happens after the order transaction commits; a lost message
// never affects the order itself.
package kafkapub

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/unkn0wn-root/flashcache/codec"
	"github.com/unkn0wn-root/flashcache/seckill"
)

// Event is the message value.
type Event struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	VoucherID int64     `json:"voucher_id"`
	CreatedAt time.Time `json:"create_time"`
}

// writer is the part of *kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Options struct {
	Brokers []string
	Topic   string
	Timeout time.Duration      // per publish; 0 => 5s
	Codec   codec.Codec[Event] // nil => JSON
}

type Publisher struct {
	w       writer
	timeout time.Duration
	codec   codec.Codec[Event]
}

var _ seckill.Publisher = (*Publisher)(nil)

// New builds a publisher backed by a kafka-go Writer. Messages are keyed by
// user so one user's orders stay on one partition.
func New(opts Options) (*Publisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafkapub: at least one broker is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("kafkapub: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(w, opts), nil
}

func newPublisher(w writer, opts Options) *Publisher {
	p := &Publisher{w: w, timeout: opts.Timeout, codec: opts.Codec}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.codec == nil {
		p.codec = codec.JSON[Event]{}
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, o seckill.Order) error {
	value, err := p.codec.Encode(Event{OrderID: o.ID, UserID: o.UserID, VoucherID: o.OfferID, CreatedAt: o.CreatedAt})
	if err != nil {
		return errors.Wrap(err, "kafkapub: encode")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(o.UserID, 10)),
		Value: value,
		Time:  o.CreatedAt,
	})
	return errors.Wrapf(err, "kafkapub: publish order %d", o.ID)
}

func (p *Publisher) Close() error { return p.w.Close() }
