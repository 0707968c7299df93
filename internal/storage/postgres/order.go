package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

const orderColumns = `id, customer_id, items, shipping_address, payment_method, status,
	payment_status, subtotal, shipping_charges, discount_amount, total_amount,
	COALESCE(coupon_code, ''), created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, customer_id, items, shipping_address, payment_method,
		status, payment_status, subtotal, shipping_charges, discount_amount, total_amount,
		coupon_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR customer_id = $1)`

	countActiveByCustomerSQL = `SELECT count(*) FROM orders
		WHERE customer_id = $1 AND status <> 'cancelled'`

	countByCouponSQL = `SELECT count(*) FROM orders WHERE coupon_code = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $3, updated_at = $4
		WHERE id = $1 AND payment_status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

// lineItemJSON is the JSONB layout of an order line item.
type lineItemJSON struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// addressJSON is the JSONB layout of a shipping address.
type addressJSON struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
}

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.TxManager  = (*TxManager)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items and the shipping address are
// serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items := make([]lineItemJSON, len(o.Items))
	for i, li := range o.Items {
		items[i] = lineItemJSON(li)
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(addressJSON(o.ShippingAddress))
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, itemsJSON, addrJSON, string(o.PaymentMethod),
		string(o.Status), string(o.PaymentStatus),
		o.Subtotal, o.ShippingCharges, o.DiscountAmount, o.TotalAmount,
		o.CouponCode, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order. Returns order.ErrNotFound when missing.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getOrderByIDSQL, id)
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

// List returns a page of orders matching f, newest first, and the total.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countOrdersSQL, f.CustomerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := q.Query(ctx, listOrdersSQL, f.CustomerID, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// CountActiveByCustomer counts the customer's orders that are not cancelled.
func (r *OrderRepository) CountActiveByCustomer(ctx context.Context, customerID string) (int, error) {
	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, countActiveByCustomerSQL, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of customer %q: %w", customerID, err)
	}
	return n, nil
}

// CountByCoupon counts orders that used the coupon code.
func (r *OrderRepository) CountByCoupon(ctx context.Context, code string) (int, error) {
	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, countByCouponSQL, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders with coupon %q: %w", code, err)
	}
	return n, nil
}

// UpdateStatus sets the status only when it still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	return r.compareAndSet(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
}

// UpdatePaymentStatus sets the payment status only when it still equals from.
func (r *OrderRepository) UpdatePaymentStatus(
	ctx context.Context,
	id string,
	from, to order.PaymentStatus,
	at time.Time,
) error {
	return r.compareAndSet(ctx, updatePaymentStatusSQL, id, string(from), string(to), at)
}

func (r *OrderRepository) compareAndSet(ctx context.Context, sql, id, from, to string, at time.Time) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, sql, id, from, to, at)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStaleState
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                             order.Order
		itemsJSON, addrJSON           []byte
		method, status, paymentStatus string
	)
	if err := row.Scan(
		&o.ID, &o.CustomerID, &itemsJSON, &addrJSON, &method, &status,
		&paymentStatus, &o.Subtotal, &o.ShippingCharges, &o.DiscountAmount, &o.TotalAmount,
		&o.CouponCode, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)

	var items []lineItemJSON
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	o.Items = make([]order.LineItem, len(items))
	for i, li := range items {
		o.Items[i] = order.LineItem(li)
	}

	var addr addressJSON
	if err := json.Unmarshal(addrJSON, &addr); err != nil {
		return o, fmt.Errorf("unmarshaling address of order %q: %w", o.ID, err)
	}
	o.ShippingAddress = order.ShippingAddress(addr)
	return o, nil
}
