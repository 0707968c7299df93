package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// writeError maps the domain error taxonomy onto HTTP responses. Ineligible
// coupons answer 422 with {"valid":false,"reason":...}; everything else uses
// the {"code","message"} envelope. Unclassified and persistence errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *errs.ValidationError
		nf *errs.NotFoundError
		ce *errs.ConflictError
		ie *errs.IneligibleError
	)
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("valid")
			e.Bool(false)
			e.FieldStart("code")
			e.Str(ie.Code)
			e.FieldStart("reason")
			e.Str(ie.Reason)
			e.ObjEnd()
		})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusBadRequest)
			e.FieldStart("message")
			e.Str(ve.Error())
			if ve.Field != "" {
				e.FieldStart("field")
				e.Str(ve.Field)
			}
			e.ObjEnd()
		})
	case errors.As(err, &nf):
		writeErrorBody(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &ce):
		writeErrorBody(w, http.StatusConflict, ce.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorBody(w, http.StatusInternalServerError, "internal server error")
	}
}
