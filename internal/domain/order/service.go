package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
)

const instrumentationName = "github.com/harsh2243/Desimithaas-sub001/internal/domain/order"

// List paging bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const idempotencySettleTimeout = 5 * time.Second

// CouponService is the part of the coupon domain checkout depends on.
type CouponService interface {
	Check(ctx context.Context, code string, cart coupon.Cart) (*coupon.Quote, error)
	Redeem(ctx context.Context, code string) error
}

// Config holds checkout pricing settings.
type Config struct {
	// ShippingCharge is the flat shipping fee added to every order.
	ShippingCharge decimal.Decimal
	// FreeShippingThreshold waives shipping when the subtotal reaches it.
	// Zero disables free shipping.
	FreeShippingThreshold decimal.Decimal
}

// Viewer identifies who is reading or mutating an order.
type Viewer struct {
	CustomerID string
	Admin      bool
}

func (v Viewer) canAccess(o *Order) bool {
	return v.Admin || (v.CustomerID != "" && v.CustomerID == o.CustomerID)
}

// ItemRequest is a requested cart line. Prices and names come from the
// catalog, never from the client.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	CustomerID      string
	IdempotencyKey  string
	Items           []ItemRequest
	CouponCode      string
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
}

// CheckoutResult holds a placed order. Replayed is set when the order was
// created by an earlier request with the same idempotency key.
type CheckoutResult struct {
	Order    *Order
	Replayed bool
}

// Option configures a Service.
type Option func(s *Service)

// WithIdempotencyStore enables Idempotency-Key deduplication for checkout.
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(s *Service) { s.idem = store }
}

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service encapsulates checkout and order lifecycle business logic.
type Service struct {
	products product.Repository
	coupons  CouponService
	orders   Repository
	tx       TxManager
	idem     IdempotencyStore
	cfg      Config

	now   func() time.Time
	newID func() string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	redeemed       metric.Int64Counter
	transitions    metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cfg Config,
	products product.Repository,
	coupons CouponService,
	orders Repository,
	tx TxManager,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:       products,
		coupons:        coupons,
		orders:         orders,
		tx:             tx,
		cfg:            cfg,
		now:            time.Now,
		newID:          uuid.NewString,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.placed, err = meter.Int64Counter("thekua.orders.placed",
		metric.WithDescription("Orders created by checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.redeemed, err = meter.Int64Counter("thekua.coupons.redeemed",
		metric.WithDescription("Coupon redemptions committed with an order"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons redeemed counter")
	}
	if s.transitions, err = meter.Int64Counter("thekua.orders.transitions",
		metric.WithDescription("Order status and payment status changes"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return s, nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Checkout validates the request, prices the cart from the catalog, applies
// an optional coupon and persists the order together with the coupon
// redemption in one transaction.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *CheckoutResult, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Checkout")
	defer func() { endSpan(span, rerr) }()

	if err := validateCheckout(req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" || s.idem == nil {
		o, err := s.place(ctx, req)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Order: o}, nil
	}

	key := req.CustomerID + ":" + req.IdempotencyKey
	existing, err := s.idem.Reserve(ctx, key)
	switch {
	case errors.Is(err, ErrRequestInFlight):
		return nil, errs.Conflict(err, "checkout with this idempotency key is already in progress")
	case err != nil:
		return nil, errs.Persistence("reserve idempotency key", err)
	case existing != "":
		o, err := s.orders.GetByID(ctx, existing)
		if err != nil {
			return nil, errs.Persistence("load replayed order", err)
		}
		zctx.From(ctx).Info("Checkout replayed",
			zap.String("order_id", o.ID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return &CheckoutResult{Order: o, Replayed: true}, nil
	}

	o, err := s.place(ctx, req)

	// The request context may already be done; the key must still settle.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencySettleTimeout)
	defer cancel()
	if err != nil {
		if relErr := s.idem.Release(settleCtx, key); relErr != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}
	if err := s.idem.Complete(settleCtx, key, o.ID); err != nil {
		// The order is committed; a lost key only disables replay.
		zctx.From(ctx).Warn("Complete idempotency key", zap.String("order_id", o.ID), zap.Error(err))
	}
	return &CheckoutResult{Order: o}, nil
}

func validateCheckout(req CheckoutRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" {
		return errs.Validation("customerId", "is required")
	}
	if len(req.Items) == 0 {
		return errs.Validation("items", "at least one item is required")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return errs.Validation(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if it.Quantity < 1 {
			return errs.Validation(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}
	if !req.PaymentMethod.Valid() {
		return errs.Validation("paymentMethod", "unsupported payment method %q", req.PaymentMethod)
	}
	return req.ShippingAddress.Validate()
}

func (s *Service) place(ctx context.Context, req CheckoutRequest) (*Order, error) {
	items, err := s.snapshot(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              s.newID(),
		CustomerID:      req.CustomerID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		DiscountAmount:  decimal.Zero,
	}
	o.Subtotal = o.ItemsTotal()
	o.ShippingCharges = s.shippingFor(o.Subtotal)

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		quote, err := s.quote(ctx, code, o)
		if err != nil {
			return nil, err
		}
		o.CouponCode = quote.Coupon.Code
		o.DiscountAmount = quote.Discount
	}

	o.TotalAmount = o.Subtotal.Add(o.ShippingCharges).Sub(o.DiscountAmount)
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	if err := o.Validate(); err != nil {
		return nil, err
	}

	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return errs.Persistence("create order", err)
		}
		if o.CouponCode != "" {
			return s.coupons.Redeem(ctx, o.CouponCode)
		}
		return nil
	}); err != nil {
		if !errs.Classified(err) {
			err = errs.Persistence("checkout transaction", err)
		}
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
	))
	if o.CouponCode != "" {
		s.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon", o.CouponCode)))
	}
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total", o.TotalAmount.String()),
		zap.String("discount", o.DiscountAmount.String()),
		zap.String("coupon", o.CouponCode),
	)
	return o, nil
}

// snapshot fetches all requested products in one batch and copies their
// catalog data into line items.
func (s *Service) snapshot(ctx context.Context, req []ItemRequest) ([]LineItem, error) {
	ids := make([]string, 0, len(req))
	for _, it := range req {
		if !slices.Contains(ids, it.ProductID) {
			ids = append(ids, it.ProductID)
		}
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Persistence("get products", err)
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]LineItem, 0, len(req))
	for _, it := range req {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errs.NotFound("product", it.ProductID, product.ErrNotFound)
		}
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}
	return items, nil
}

func (s *Service) shippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if s.cfg.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.ShippingCharge
}

func (s *Service) quote(ctx context.Context, code string, o *Order) (*coupon.Quote, error) {
	first, err := s.IsFirstOrder(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}
	return s.coupons.Check(ctx, code, CartOf(o.Items, o.Subtotal, first))
}

// IsFirstOrder reports whether the customer has no orders other than
// cancelled ones.
func (s *Service) IsFirstOrder(ctx context.Context, customerID string) (bool, error) {
	n, err := s.orders.CountActiveByCustomer(ctx, customerID)
	if err != nil {
		return false, errs.Persistence("count customer orders", err)
	}
	return n == 0, nil
}

// CartOf builds the eligibility view of a set of line items.
func CartOf(items []LineItem, amount decimal.Decimal, firstOrder bool) coupon.Cart {
	cart := coupon.Cart{Amount: amount, IsFirstOrder: firstOrder}
	for _, li := range items {
		if !slices.Contains(cart.Categories, li.Category) {
			cart.Categories = append(cart.Categories, li.Category)
		}
		if !slices.Contains(cart.ProductIDs, li.ProductID) {
			cart.ProductIDs = append(cart.ProductIDs, li.ProductID)
		}
	}
	return cart
}

// Snapshot prices requested items from the catalog without placing an order.
func (s *Service) Snapshot(ctx context.Context, req []ItemRequest) ([]LineItem, decimal.Decimal, error) {
	for i, it := range req {
		if it.Quantity < 1 {
			return nil, decimal.Zero, errs.Validation(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}
	items, err := s.snapshot(ctx, req)
	if err != nil {
		return nil, decimal.Zero, err
	}
	o := Order{Items: items}
	return items, o.ItemsTotal(), nil
}

// Get returns the order if v may see it. Orders of other customers are
// reported as not found.
func (s *Service) Get(ctx context.Context, id string, v Viewer) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.NotFound("order", id, err)
		}
		return nil, errs.Persistence("get order", err)
	}
	if !v.canAccess(o) {
		return nil, errs.NotFound("order", id, nil)
	}
	return o, nil
}

// List returns a page of orders visible to v, newest first, and the total.
func (s *Service) List(ctx context.Context, v Viewer, page, limit int) ([]Order, int, error) {
	f := Filter{Page: max(page, 1), Limit: limit}
	switch {
	case f.Limit < 1:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if !v.Admin {
		if v.CustomerID == "" {
			return nil, 0, errs.Validation("customerId", "is required")
		}
		f.CustomerID = v.CustomerID
	}

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, errs.Persistence("list orders", err)
	}
	return orders, total, nil
}

// Cancel cancels a pending order owned by v (or any order for admins).
func (s *Service) Cancel(ctx context.Context, id string, v Viewer) (_ *Order, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Cancel")
	defer func() { endSpan(span, rerr) }()

	o, err := s.Get(ctx, id, v)
	if err != nil {
		return nil, err
	}
	prev := o.Status
	if err := o.Cancel(); err != nil {
		return nil, err
	}
	if err := s.persistStatus(ctx, o, prev); err != nil {
		return nil, err
	}
	return o, nil
}

// Advance moves an order forward in its fulfillment lifecycle.
func (s *Service) Advance(ctx context.Context, id string, to Status) (_ *Order, rerr error) {
	ctx, span := s.startSpan(ctx, "order.Advance")
	defer func() { endSpan(span, rerr) }()

	o, err := s.Get(ctx, id, Viewer{Admin: true})
	if err != nil {
		return nil, err
	}
	prev := o.Status
	if err := o.Transition(to); err != nil {
		return nil, err
	}
	if err := s.persistStatus(ctx, o, prev); err != nil {
		return nil, err
	}
	return o, nil
}

// SetPaymentStatus records a payment state change, typically from a payment
// webhook.
func (s *Service) SetPaymentStatus(ctx context.Context, id string, to PaymentStatus) (_ *Order, rerr error) {
	ctx, span := s.startSpan(ctx, "order.SetPaymentStatus")
	defer func() { endSpan(span, rerr) }()

	o, err := s.Get(ctx, id, Viewer{Admin: true})
	if err != nil {
		return nil, err
	}
	prev := o.PaymentStatus
	if err := o.SetPaymentStatus(to); err != nil {
		return nil, err
	}

	o.UpdatedAt = s.now()
	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, prev, o.PaymentStatus, o.UpdatedAt); err != nil {
		return nil, s.updateError(o.ID, err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", "payment"),
		attribute.String("to", string(to)),
	))
	zctx.From(ctx).Info("Order payment status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(to)),
	)
	return o, nil
}

func (s *Service) persistStatus(ctx context.Context, o *Order, prev Status) error {
	o.UpdatedAt = s.now()
	if err := s.orders.UpdateStatus(ctx, o.ID, prev, o.Status, o.UpdatedAt); err != nil {
		return s.updateError(o.ID, err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", "status"),
		attribute.String("to", string(o.Status)),
	))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(o.Status)),
	)
	return nil
}

func (s *Service) updateError(id string, err error) error {
	switch {
	case errors.Is(err, ErrStaleState):
		return errs.Conflict(err, "order %s was modified concurrently, retry", id)
	case errors.Is(err, ErrNotFound):
		return errs.NotFound("order", id, err)
	default:
		return errs.Persistence("update order", err)
	}
}
