package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ornara/commerce-api/internal/domain/coupon"
	"github.com/ornara/commerce-api/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, items, shipping_address,
		billing_address, payment_method, payment_status, pricing, coupon, status, timeline,
		delivered_at, created_at)
		VALUES ($1, 'ORD-' || nextval('order_number_seq'), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING order_number`

	orderColumns = `id, order_number, user_id, items, shipping_address, billing_address,
		payment_method, payment_status, pricing, coupon, status, timeline, cancellation,
		delivered_at, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	// Conditioned on the prior status so concurrent transitions resolve to one
	// winner. Zero rows updated means somebody else moved the order first.
	saveOrderTransitionSQL = `UPDATE orders
		SET status = $3, timeline = $4, cancellation = $5, delivered_at = $6
		WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items,
// addresses, pricing and the timeline are immutable-or-append-only documents
// stored in JSONB columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and assigns its sequential order number from
// the database sequence.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return fmt.Errorf("marshaling pricing: %w", err)
	}
	timeline, err := json.Marshal(o.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}
	var couponJSON []byte
	if o.Coupon != nil {
		if couponJSON, err = json.Marshal(o.Coupon); err != nil {
			return fmt.Errorf("marshaling coupon: %w", err)
		}
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, items, shipping, billing,
		o.PaymentMethod, o.PaymentStatus, pricing, couponJSON,
		o.Status, timeline, o.DeliveredAt, o.CreatedAt,
	).Scan(&o.OrderNumber)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// SaveTransition persists a completed transition conditioned on the order
// still being in the given prior status. Returns order.ErrStale when another
// writer got there first.
func (r *OrderRepository) SaveTransition(ctx context.Context, o *order.Order, from order.Status) error {
	timeline, err := json.Marshal(o.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}
	var cancellation []byte
	if o.Cancellation != nil {
		if cancellation, err = json.Marshal(o.Cancellation); err != nil {
			return fmt.Errorf("marshaling cancellation: %w", err)
		}
	}

	tag, err := r.pool.Exec(ctx, saveOrderTransitionSQL,
		o.ID, from, o.Status, timeline, cancellation, o.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("saving transition for order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStale
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                  order.Order
		items, shipping, billing, pricing  []byte
		couponJSON, timeline, cancellation []byte
		status                             string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &items, &shipping, &billing,
		&o.PaymentMethod, &o.PaymentStatus, &pricing, &couponJSON,
		&status, &timeline, &cancellation, &o.DeliveredAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	if err := json.Unmarshal(pricing, &o.Pricing); err != nil {
		return o, fmt.Errorf("unmarshaling pricing: %w", err)
	}
	if err := json.Unmarshal(timeline, &o.Timeline); err != nil {
		return o, fmt.Errorf("unmarshaling timeline: %w", err)
	}
	if len(couponJSON) > 0 {
		o.Coupon = new(coupon.Application)
		if err := json.Unmarshal(couponJSON, o.Coupon); err != nil {
			return o, fmt.Errorf("unmarshaling coupon: %w", err)
		}
	}
	if len(cancellation) > 0 {
		o.Cancellation = new(order.Cancellation)
		if err := json.Unmarshal(cancellation, o.Cancellation); err != nil {
			return o, fmt.Errorf("unmarshaling cancellation: %w", err)
		}
	}
	return o, nil
}
