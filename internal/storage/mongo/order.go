package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

type lineItemDoc struct {
	ProductID string               `bson:"productId"`
	Name      string               `bson:"name"`
	Category  string               `bson:"category"`
	UnitPrice primitive.Decimal128 `bson:"unitPrice"`
	Quantity  int                  `bson:"quantity"`
}

type addressDoc struct {
	FullName   string `bson:"fullName"`
	Phone      string `bson:"phone"`
	Line1      string `bson:"line1"`
	Line2      string `bson:"line2,omitempty"`
	City       string `bson:"city"`
	State      string `bson:"state,omitempty"`
	PostalCode string `bson:"postalCode"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	CustomerID      string               `bson:"customerId"`
	Items           []lineItemDoc        `bson:"items"`
	ShippingAddress addressDoc           `bson:"shippingAddress"`
	PaymentMethod   string               `bson:"paymentMethod"`
	Status          string               `bson:"status"`
	PaymentStatus   string               `bson:"paymentStatus"`
	Subtotal        primitive.Decimal128 `bson:"subtotal"`
	ShippingCharges primitive.Decimal128 `bson:"shippingCharges"`
	DiscountAmount  primitive.Decimal128 `bson:"discountAmount"`
	TotalAmount     primitive.Decimal128 `bson:"totalAmount"`
	CouponCode      string               `bson:"couponCode,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func toOrderDoc(o *order.Order) (orderDoc, error) {
	d := orderDoc{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Items:           make([]lineItemDoc, len(o.Items)),
		ShippingAddress: addressDoc(o.ShippingAddress),
		PaymentMethod:   string(o.PaymentMethod),
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CouponCode:      o.CouponCode,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i, li := range o.Items {
		price, err := toDecimal128(li.UnitPrice)
		if err != nil {
			return d, fmt.Errorf("encoding order %q item %q: %w", o.ID, li.ProductID, err)
		}
		d.Items[i] = lineItemDoc{
			ProductID: li.ProductID,
			Name:      li.Name,
			Category:  li.Category,
			UnitPrice: price,
			Quantity:  li.Quantity,
		}
	}
	for _, m := range []struct {
		dst *primitive.Decimal128
		src decimal.Decimal
	}{
		{&d.Subtotal, o.Subtotal},
		{&d.ShippingCharges, o.ShippingCharges},
		{&d.DiscountAmount, o.DiscountAmount},
		{&d.TotalAmount, o.TotalAmount},
	} {
		v, err := toDecimal128(m.src)
		if err != nil {
			return d, fmt.Errorf("encoding order %q: %w", o.ID, err)
		}
		*m.dst = v
	}
	return d, nil
}

func (d orderDoc) toDomain() (order.Order, error) {
	o := order.Order{
		ID:              d.ID,
		CustomerID:      d.CustomerID,
		Items:           make([]order.LineItem, len(d.Items)),
		ShippingAddress: order.ShippingAddress(d.ShippingAddress),
		PaymentMethod:   order.PaymentMethod(d.PaymentMethod),
		Status:          order.Status(d.Status),
		PaymentStatus:   order.PaymentStatus(d.PaymentStatus),
		CouponCode:      d.CouponCode,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	for i, li := range d.Items {
		price, err := fromDecimal128(li.UnitPrice)
		if err != nil {
			return o, err
		}
		o.Items[i] = order.LineItem{
			ProductID: li.ProductID,
			Name:      li.Name,
			Category:  li.Category,
			UnitPrice: price,
			Quantity:  li.Quantity,
		}
	}

	var err error
	if o.Subtotal, err = fromDecimal128(d.Subtotal); err != nil {
		return o, err
	}
	if o.ShippingCharges, err = fromDecimal128(d.ShippingCharges); err != nil {
		return o, err
	}
	if o.DiscountAmount, err = fromDecimal128(d.DiscountAmount); err != nil {
		return o, err
	}
	if o.TotalAmount, err = fromDecimal128(d.TotalAmount); err != nil {
		return o, err
	}
	return o, nil
}

func customerFilter(customerID string) bson.M {
	if customerID == "" {
		return bson.M{}
	}
	return bson.M{"customerId": customerID}
}

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.TxManager  = (*TxManager)(nil)
)

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns an OrderRepository on db's orders collection.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(OrdersCollection)}
}

// Create persists a new order with its line items embedded.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	d, err := toOrderDoc(o)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order. Returns order.ErrNotFound when missing.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var d orderDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := d.toDomain()
	if err != nil {
		return nil, fmt.Errorf("decoding order %q: %w", id, err)
	}
	return &o, nil
}

// List returns a page of orders, newest first, and the total matching.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	filter := customerFilter(f.CustomerID)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}

	out := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("decoding order %q: %w", d.ID, err)
		}
		out = append(out, o)
	}
	return out, int(total), nil
}

// CountActiveByCustomer counts the customer's orders that are not cancelled.
func (r *OrderRepository) CountActiveByCustomer(ctx context.Context, customerID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"customerId": customerID,
		"status":     bson.M{"$ne": string(order.StatusCancelled)},
	})
	if err != nil {
		return 0, fmt.Errorf("counting orders of customer %q: %w", customerID, err)
	}
	return int(n), nil
}

// CountByCoupon counts orders that used the coupon code.
func (r *OrderRepository) CountByCoupon(ctx context.Context, code string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"couponCode": code})
	if err != nil {
		return 0, fmt.Errorf("counting orders with coupon %q: %w", code, err)
	}
	return int(n), nil
}

// UpdateStatus sets the status to `to` only if it is currently `from`.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	return r.compareAndSet(ctx, id, "status", string(from), string(to), at)
}

// UpdatePaymentStatus sets the payment status to `to` only if it is
// currently `from`.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to order.PaymentStatus, at time.Time) error {
	return r.compareAndSet(ctx, id, "paymentStatus", string(from), string(to), at)
}

func (r *OrderRepository) compareAndSet(ctx context.Context, id, field, from, to string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, field: from},
		bson.M{"$set": bson.M{field: to, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("updating order %q %s: %w", id, field, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	exists, err := existsByID(ctx, r.coll, id)
	if err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStaleState
}
