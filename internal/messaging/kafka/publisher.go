// Package kafka publishes order lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/coffee-shop/internal/domain/order"
)

const headerEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes one message per order event, keyed by order id so all
// events of an order land on the same partition.
type Publisher struct {
	w messageWriter
}

// NewPublisher creates a Publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *Publisher) Publish(ctx context.Context, ev order.Event) error {
	msg := kafka.Message{
		Key:   []byte(ev.Order.ID),
		Value: encodeEvent(ev),
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", ev.Type)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func encodeEvent(ev order.Event) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(ev.Order.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(ev.Order.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(ev.Order.Status)) })
		e.Field("totalAmount", func(e *jx.Encoder) { e.Float64(ev.Order.Total.InexactFloat64()) })
		if ev.Order.BuyerID != "" {
			e.Field("buyerId", func(e *jx.Encoder) { e.Str(ev.Order.BuyerID) })
		}
		e.Field("at", func(e *jx.Encoder) { e.Str(ev.At.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}
