package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

// IdempotencyKeyHeader deduplicates checkout retries.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		return decodeCheckout(d, key, &req)
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(idemKey) > maxIdempotencyKeyLen {
		writeErrorBody(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}

	v := viewer(r.Context())
	res, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		CustomerID:     v.CustomerID,
		IdempotencyKey: idemKey,
		Items:          toItemRequests(req.CartItems),
		CouponCode:     req.CouponCode,
		ShippingAddress: order.ShippingAddress{
			FullName:   req.ShippingInfo.FullName,
			Phone:      req.ShippingInfo.Phone,
			Line1:      req.ShippingInfo.Line1,
			Line2:      req.ShippingInfo.Line2,
			City:       req.ShippingInfo.City,
			State:      req.ShippingInfo.State,
			PostalCode: req.ShippingInfo.PostalCode,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		zctx.From(r.Context()).Info("Checkout replayed", zap.String("order_id", res.Order.ID))
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeOrder(e, res.Order)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r, order.DefaultLimit, order.MaxLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, total, err := h.orders.List(r.Context(), viewer(r.Context()), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		encodePage(e, page, limit, total)
		e.ObjEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), viewer(r.Context()))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), viewer(r.Context()))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, singleField("status", func(d *jx.Decoder) (err error) {
		req.Status, err = d.Str()
		return err
	})); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Advance(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeBody(r, singleField("paymentStatus", func(d *jx.Decoder) (err error) {
		req.PaymentStatus, err = d.Str()
		return err
	})); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), order.PaymentStatus(req.PaymentStatus))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// encodeOrder writes the created-order representation: orderId, items,
// totalAmount, discountAmount, status and paymentStatus, plus the pricing
// breakdown and shipping details.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("items")
	e.ArrStart()
	for _, li := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(li.ProductID)
		e.FieldStart("name")
		e.Str(li.Name)
		e.FieldStart("category")
		e.Str(li.Category)
		e.FieldStart("price")
		encodeDecimal(e, li.UnitPrice)
		e.FieldStart("quantity")
		e.Int(li.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeDecimal(e, o.Subtotal)
	e.FieldStart("shippingCharges")
	encodeDecimal(e, o.ShippingCharges)
	e.FieldStart("discountAmount")
	encodeDecimal(e, o.DiscountAmount)
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.TotalAmount)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))

	a := o.ShippingAddress
	e.FieldStart("shippingInfo")
	e.ObjStart()
	e.FieldStart("fullName")
	e.Str(a.FullName)
	e.FieldStart("phone")
	e.Str(a.Phone)
	e.FieldStart("line1")
	e.Str(a.Line1)
	if a.Line2 != "" {
		e.FieldStart("line2")
		e.Str(a.Line2)
	}
	e.FieldStart("city")
	e.Str(a.City)
	if a.State != "" {
		e.FieldStart("state")
		e.Str(a.State)
	}
	e.FieldStart("postalCode")
	e.Str(a.PostalCode)
	e.ObjEnd()

	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}
