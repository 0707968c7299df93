package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			err = errs.NotFound("product", id, err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

// encodeProduct writes p, prefixing image paths with the configured base URL.
func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	base := h.imageBaseURL
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	if p.Description != "" {
		e.FieldStart("description")
		e.Str(p.Description)
	}
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.ObjStart()
	e.FieldStart("thumbnail")
	e.Str(base + p.Image.Thumbnail)
	e.FieldStart("mobile")
	e.Str(base + p.Image.Mobile)
	e.FieldStart("tablet")
	e.Str(base + p.Image.Tablet)
	e.FieldStart("desktop")
	e.Str(base + p.Image.Desktop)
	e.ObjEnd()
	e.ObjEnd()
}
