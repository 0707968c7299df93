package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// maxPage keeps (page-1)*limit well inside the storage offset range.
const maxPage = 100_000

// writeJSON encodes a response body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeErrorBody writes the {"code","message"} envelope.
func writeErrorBody(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// decodeBody reads r's body as a single JSON object, calling field for each
// key. Malformed JSON becomes a ValidationError.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errs.Validation("", "reading request body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return errs.Validation("", "request body exceeds %d bytes", maxBodyBytes)
	}
	if len(body) == 0 {
		return errs.Validation("", "request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return errs.Validation("", "malformed JSON: %v", err)
	}
	return nil
}

func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errs.Validation(field, "must be a number")
		}
		return v, nil
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, errs.Validation(field, "must be a number")
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, errs.Validation(field, "must be a number")
	}
	return v, nil
}

func decodeNullDecimal(d *jx.Decoder, field string) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d, field)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

func decodeTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, errs.Validation(field, "must be an RFC 3339 timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errs.Validation(field, "must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	if d.Next() == jx.Null {
		return out, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

// pageParams reads ?page and ?limit, defaulting to page 1 and defLimit and
// capping limit at maxLimit. Pages past maxPage are rejected.
func pageParams(r *http.Request, defLimit, maxLimit int) (page, limit int, err error) {
	page, limit = 1, defLimit
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, errs.Validation("page", "must be a positive integer")
		}
		if page > maxPage {
			return 0, 0, errs.Validation("page", "must be at most %d", maxPage)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, errs.Validation("limit", "must be a positive integer")
		}
	}
	return page, min(limit, maxLimit), nil
}

func encodePage(e *jx.Encoder, page, limit, total int) {
	e.FieldStart("page")
	e.Int(page)
	e.FieldStart("limit")
	e.Int(limit)
	e.FieldStart("total")
	e.Int(total)
}
