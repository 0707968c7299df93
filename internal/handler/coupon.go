package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

// validateCoupon prices the cart from the catalog and checks the coupon
// against it without redeeming. Ineligible coupons answer 422 with the
// failing rule.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		return decodeValidateCoupon(d, key, &req)
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	items, subtotal, err := h.orders.Snapshot(ctx, toItemRequests(req.CartItems))
	if err != nil {
		writeError(w, r, err)
		return
	}
	first, err := h.orders.IsFirstOrder(ctx, viewer(ctx).CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.coupons.Check(ctx, req.Code, order.CartOf(items, subtotal, first))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		c := quote.Coupon
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("discountValue")
		encodeDecimal(e, c.DiscountValue)
		e.FieldStart("subtotal")
		encodeDecimal(e, subtotal)
		e.FieldStart("discountAmount")
		encodeDecimal(e, quote.Discount)
		if c.Description != "" {
			e.FieldStart("description")
			e.Str(c.Description)
		}
		e.ObjEnd()
	})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r, order.DefaultLimit, order.MaxLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	coupons, total, err := h.coupons.List(r.Context(), coupon.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupons")
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i])
		}
		e.ArrEnd()
		encodePage(e, page, limit, total)
		e.ObjEnd()
	})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), chi.URLParam(r, "code"))
	respondCoupon(w, r, http.StatusOK, c, err)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCoupon(w, r, "")
	if !ok {
		return
	}
	c, err := h.coupons.Create(r.Context(), req.toDomain())
	respondCoupon(w, r, http.StatusCreated, c, err)
}

// updateCoupon replaces a coupon's definition. The path names the coupon;
// a code in the body is ignored.
func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCoupon(w, r, chi.URLParam(r, "code"))
	if !ok {
		return
	}
	c, err := h.coupons.Update(r.Context(), req.toDomain())
	respondCoupon(w, r, http.StatusOK, c, err)
}

func (h *Handler) decodeCoupon(w http.ResponseWriter, r *http.Request, pathCode string) (*couponRequest, bool) {
	var req couponRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		return decodeCouponRequest(d, key, &req)
	}); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if pathCode != "" {
		req.Code = pathCode
	}
	req.Code = coupon.NormalizeCode(req.Code)
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return &req, true
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setCouponActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeBody(r, singleField("isActive", func(d *jx.Decoder) error {
		v, err := d.Bool()
		req.Active = &v
		return err
	})); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.SetActive(r.Context(), chi.URLParam(r, "code"), *req.Active)
	respondCoupon(w, r, http.StatusOK, c, err)
}

func respondCoupon(w http.ResponseWriter, r *http.Request, status int, c *coupon.Coupon, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCoupon(e, c)
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("discountValue")
	encodeDecimal(e, c.DiscountValue)
	e.FieldStart("minOrderAmount")
	encodeDecimal(e, c.MinOrderAmount)
	e.FieldStart("maxDiscountAmount")
	if c.MaxDiscountAmount.Valid {
		encodeDecimal(e, c.MaxDiscountAmount.Decimal)
	} else {
		e.Null()
	}
	e.FieldStart("usageLimit")
	if c.UsageLimit != nil {
		e.Int(*c.UsageLimit)
	} else {
		e.Null()
	}
	e.FieldStart("usedCount")
	e.Int(c.UsedCount)
	e.FieldStart("startDate")
	encodeTime(e, c.StartDate)
	e.FieldStart("endDate")
	encodeTime(e, c.EndDate)
	e.FieldStart("applicableCategories")
	encodeStrings(e, c.ApplicableCategories)
	e.FieldStart("applicableProducts")
	encodeStrings(e, c.ApplicableProductIDs)
	e.FieldStart("isFirstOrderOnly")
	e.Bool(c.FirstOrderOnly)
	e.FieldStart("isActive")
	e.Bool(c.Active)
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}
