package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/coffee-shop/internal/domain/order"
)

type metrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	created, err := meter.Int64Counter("coffee.orders.created",
		metric.WithDescription("Orders placed"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	transitions, err := meter.Int64Counter("coffee.orders.transitions",
		metric.WithDescription("Order status transitions by target status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "order transitions counter")
	}
	return &metrics{created: created, transitions: transitions}, nil
}

func (m *metrics) orderCreated(ctx context.Context, o *order.Order) {
	m.created.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("guest", o.IsGuest()),
		attribute.Bool("member_discount", o.MemberDiscount.IsPositive()),
		attribute.String("payment_method", string(o.PaymentMethod)),
	))
}

func (m *metrics) statusChanged(ctx context.Context, to order.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}
