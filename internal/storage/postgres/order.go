package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffee-shop/internal/domain/order"
)

const (
	orderColumns = `id, order_number, coalesce(buyer_id, ''), items, subtotal, item_discount,
		member_discount, shipping_fee, total_amount, shipping_name, shipping_phone,
		shipping_email, shipping_note, payment_method, status, status_history, version, created_at`

	insertOrderSQL = `INSERT INTO orders (
			id, order_number, buyer_id, items, subtotal, item_discount,
			member_discount, shipping_fee, total_amount, shipping_name, shipping_phone,
			shipping_email, shipping_note, payment_method, status, status_history, version, created_at
		) VALUES ($1, $2, nullif($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	listOrdersByBuyerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE buyer_id = $1 ORDER BY created_at DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	countOrdersByBuyerSQL = `SELECT count(*) FROM orders WHERE buyer_id = $1`

	lockBuyerSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, status_history = $3, version = version + 1
		WHERE id = $1 AND version = $4
		RETURNING version`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	// Applied when ListFilter.Limit is unset.
	defaultListLimit = 500
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
//
// Line items and status history are stored as JSONB documents; prices and
// totals live in NUMERIC columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a guest order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return insertOrder(ctx, r.pool, o)
}

// CreateForBuyer holds a transaction-scoped advisory lock on the buyer while
// counting prior orders and inserting the new one, so two concurrent first
// orders cannot both observe a zero count.
func (r *OrderRepository) CreateForBuyer(
	ctx context.Context,
	buyerID string,
	build func(priorOrders int) (*order.Order, error),
) (*order.Order, error) {
	var created *order.Order
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockBuyerSQL, buyerID); err != nil {
			return errors.Wrap(err, "lock buyer")
		}

		var prior int
		if err := tx.QueryRow(ctx, countOrdersByBuyerSQL, buyerID).Scan(&prior); err != nil {
			return errors.Wrap(err, "count orders")
		}

		o, err := build(prior)
		if err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByNumberSQL, number)
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByBuyerSQL, buyerID)
	if err != nil {
		return nil, errors.Wrap(err, "list buyer orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns orders newest first, optionally narrowed by status.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersByBuyerSQL, buyerID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count orders")
	}
	return n, nil
}

// Update locks the row, applies mutate and writes back the status and
// history with a bumped version.
func (r *OrderRepository) Update(ctx context.Context, id string, mutate func(o *order.Order) error) (*order.Order, error) {
	var updated *order.Order
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, getOrderForUpdateSQL, id)
		if err != nil {
			return err
		}
		if err := mutate(o); err != nil {
			return err
		}

		history, err := json.Marshal(o.History)
		if err != nil {
			return errors.Wrap(err, "encode status history")
		}
		if err := tx.QueryRow(ctx, updateOrderStatusSQL, o.ID, string(o.Status), history, o.Version).
			Scan(&o.Version); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Errorf("order %q modified concurrently", id)
			}
			return errors.Wrap(err, "update order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func insertOrder(ctx context.Context, q querier, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "encode items")
	}
	history, err := json.Marshal(o.History)
	if err != nil {
		return errors.Wrap(err, "encode status history")
	}

	_, err = q.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.BuyerID, items, o.Subtotal, o.ItemDiscount,
		o.MemberDiscount, o.ShippingFee, o.Total, o.Shipping.Name, o.Shipping.Phone,
		o.Shipping.Email, o.Shipping.Note, string(o.PaymentMethod), string(o.Status), history,
		o.Version, o.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == "orders_order_number_key" {
			return order.ErrDuplicateNumber
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, sql, arg string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		items, history []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.BuyerID, &items, &o.Subtotal, &o.ItemDiscount,
		&o.MemberDiscount, &o.ShippingFee, &o.Total, &o.Shipping.Name, &o.Shipping.Phone,
		&o.Shipping.Email, &o.Shipping.Note, &o.PaymentMethod, &o.Status, &history, &o.Version, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "decode items")
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return o, errors.Wrap(err, "decode status history")
	}
	return o, nil
}
