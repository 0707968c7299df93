package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the payment state of an order. It evolves independently of
// Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentCOD        PaymentMethod = "cod"
	PaymentCard       PaymentMethod = "card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetbanking PaymentMethod = "netbanking"
	PaymentWallet     PaymentMethod = "wallet"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentCard, PaymentUPI, PaymentNetbanking, PaymentWallet:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned by repositories when no order has the id.
	ErrNotFound = errors.New("order not found")
	// ErrStaleState is returned by conditional updates when the stored state
	// no longer matches the expected previous state.
	ErrStaleState = errors.New("order state changed concurrently")
)

// LineItem is a snapshot of a product at checkout time. Later catalog edits do
// not affect it.
type LineItem struct {
	ProductID string
	Name      string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns UnitPrice × Quantity.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ShippingAddress is where an order is delivered.
type ShippingAddress struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

// Validate checks that the required address fields are present.
func (a ShippingAddress) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"shippingAddress.fullName", a.FullName},
		{"shippingAddress.phone", a.Phone},
		{"shippingAddress.line1", a.Line1},
		{"shippingAddress.city", a.City},
		{"shippingAddress.postalCode", a.PostalCode},
	} {
		if strings.TrimSpace(f.value) == "" {
			return errs.Validation(f.name, "is required")
		}
	}
	return nil
}

// Order represents a placed customer order with pricing and fulfillment state.
type Order struct {
	ID              string
	CustomerID      string
	Items           []LineItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Status          Status
	PaymentStatus   PaymentStatus
	Subtotal        decimal.Decimal
	ShippingCharges decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	CouponCode      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemsTotal returns the sum of all line item totals.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range o.Items {
		sum = sum.Add(li.Total())
	}
	return sum
}

// Validate checks the monetary invariant
// TotalAmount = Σ items + ShippingCharges − DiscountAmount ≥ 0.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return errs.Validation("items", "at least one item is required")
	}
	for _, v := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", o.Subtotal},
		{"shippingCharges", o.ShippingCharges},
		{"discountAmount", o.DiscountAmount},
		{"totalAmount", o.TotalAmount},
	} {
		if v.value.IsNegative() {
			return errs.Validation(v.name, "must not be negative")
		}
	}
	if !o.Subtotal.Equal(o.ItemsTotal()) {
		return errs.Validation("subtotal", "does not match line items")
	}
	want := o.Subtotal.Add(o.ShippingCharges).Sub(o.DiscountAmount)
	if !o.TotalAmount.Equal(want) {
		return errs.Validation("totalAmount", "expected %s, got %s", want, o.TotalAmount)
	}
	return nil
}

// Filter selects orders for listing. An empty CustomerID lists all orders.
type Filter struct {
	CustomerID string
	Page       int
	Limit      int
}

// Offset returns the number of rows to skip.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns a page of orders, newest first, and the total matching.
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// CountActiveByCustomer counts the customer's orders that are not cancelled.
	CountActiveByCustomer(ctx context.Context, customerID string) (int, error)
	// CountByCoupon counts orders that used the coupon code.
	CountByCoupon(ctx context.Context, code string) (int, error)
	// UpdateStatus sets the status to `to` only if it is currently `from`.
	// It returns ErrStaleState when the stored status differs.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	// UpdatePaymentStatus is the payment counterpart of UpdateStatus.
	UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus, at time.Time) error
}

// TxManager runs fn inside a single store transaction. Repositories called
// with the ctx passed to fn take part in it. A non-nil error from fn rolls the
// transaction back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrRequestInFlight is returned by IdempotencyStore.Reserve when another
// request holds the key.
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// IdempotencyStore deduplicates checkout requests by client-supplied key.
type IdempotencyStore interface {
	// Reserve claims key. It returns the order id recorded for key when a
	// previous request already completed, an empty id when the key was
	// claimed now, or ErrRequestInFlight.
	Reserve(ctx context.Context, key string) (orderID string, err error)
	// Complete records the order created for a reserved key.
	Complete(ctx context.Context, key, orderID string) error
	// Release drops a reservation after a failed request so it may be retried.
	Release(ctx context.Context, key string) error
}
