// Package handler exposes the storefront HTTP API: catalog, coupon
// validation, checkout, order lifecycle and coupon administration.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
	"github.com/harsh2243/Desimithaas-sub001/pkg/httpmiddleware"
)

// OrderService is the order behaviour the handler depends on.
type OrderService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error)
	Snapshot(ctx context.Context, req []order.ItemRequest) ([]order.LineItem, decimal.Decimal, error)
	IsFirstOrder(ctx context.Context, customerID string) (bool, error)
	Get(ctx context.Context, id string, v order.Viewer) (*order.Order, error)
	List(ctx context.Context, v order.Viewer, page, limit int) ([]order.Order, int, error)
	Cancel(ctx context.Context, id string, v order.Viewer) (*order.Order, error)
	Advance(ctx context.Context, id string, to order.Status) (*order.Order, error)
	SetPaymentStatus(ctx context.Context, id string, to order.PaymentStatus) (*order.Order, error)
}

// CouponService is the coupon behaviour the handler depends on.
type CouponService interface {
	Check(ctx context.Context, code string, cart coupon.Cart) (*coupon.Quote, error)
	Get(ctx context.Context, code string) (*coupon.Coupon, error)
	List(ctx context.Context, page coupon.Page) ([]coupon.Coupon, int, error)
	Create(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error)
	Update(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) (*coupon.Coupon, error)
	Delete(ctx context.Context, code string) error
}

// Probes serves the liveness and readiness endpoints.
type Probes interface {
	LiveEndpoint(w http.ResponseWriter, r *http.Request)
	ReadyEndpoint(w http.ResponseWriter, r *http.Request)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the HTTP API, delegating business logic to the domain
// services.
type Handler struct {
	products     product.Repository
	orders       OrderService
	coupons      CouponService
	imageBaseURL string
	validator    *validator.Validate
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	orders OrderService,
	coupons CouponService,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		coupons:      coupons,
		imageBaseURL: cfg.ImageBaseURL,
		validator:    newValidator(),
	}
}

// Routes returns the API router. probes may be nil.
func (h *Handler) Routes(sec *Security, probes Probes) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.LogRequests(httpmiddleware.ChiRoutePattern),
		httpmiddleware.Labeler(httpmiddleware.ChiRoutePattern),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if probes != nil {
		r.Get("/livez", probes.LiveEndpoint)
		r.Get("/readyz", probes.ReadyEndpoint)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(sec.Require(auth.ScopeCustomer))
			r.Post("/coupons/validate", h.validateCoupon)
			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/cancel", h.cancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(sec.Require(auth.ScopeAdmin))
			r.Get("/coupons", h.listCoupons)
			r.Post("/coupons", h.createCoupon)
			r.Get("/coupons/{code}", h.getCoupon)
			r.Put("/coupons/{code}", h.updateCoupon)
			r.Delete("/coupons/{code}", h.deleteCoupon)
			r.Post("/coupons/{code}/active", h.setCouponActive)
			r.Post("/orders/{id}/status", h.advanceOrder)
			r.Post("/orders/{id}/payment", h.setPaymentStatus)
		})
	})
	return r
}

// viewer returns the order visibility of the authenticated caller.
func viewer(ctx context.Context) order.Viewer {
	info, ok := auth.FromContext(ctx)
	if !ok {
		return order.Viewer{}
	}
	return order.Viewer{CustomerID: info.CustomerID, Admin: info.IsAdmin()}
}
