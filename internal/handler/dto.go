package handler

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate runs the boundary schema on req and converts the first failure
// into a ValidationError.
func (h *Handler) validate(req any) error {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.Validation("", "%v", err)
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return errs.Validation(field, "%s", ruleMessage(fe))
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

// cartItem is one requested cart line. Price, category and name sent by the
// client are accepted for compatibility and ignored; the catalog is
// authoritative.
type cartItem struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=1000"`
}

func decodeCartItems(d *jx.Decoder) ([]cartItem, error) {
	var items []cartItem
	err := d.Arr(func(d *jx.Decoder) error {
		var it cartItem
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				it.ProductID, err = d.Str()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
		items = append(items, it)
		return err
	})
	return items, err
}

func toItemRequests(items []cartItem) []order.ItemRequest {
	out := make([]order.ItemRequest, len(items))
	for i, it := range items {
		out[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

type shippingInfo struct {
	FullName   string `json:"fullName" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=12"`
}

func (s *shippingInfo) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "fullName":
			dst = &s.FullName
		case "phone":
			dst = &s.Phone
		case "line1", "addressLine1":
			dst = &s.Line1
		case "line2", "addressLine2":
			dst = &s.Line2
		case "city":
			dst = &s.City
		case "state":
			dst = &s.State
		case "postalCode", "pincode":
			dst = &s.PostalCode
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
}

// checkoutRequest is the POST /api/orders body.
type checkoutRequest struct {
	CartItems     []cartItem   `json:"cartItems" validate:"required,min=1,max=100,dive"`
	CouponCode    string       `json:"couponCode" validate:"omitempty,max=20"`
	ShippingInfo  shippingInfo `json:"shippingInfo"`
	PaymentMethod string       `json:"paymentMethod" validate:"required,oneof=cod card upi netbanking wallet"`
}

func decodeCheckout(d *jx.Decoder, key string, req *checkoutRequest) error {
	var err error
	switch key {
	case "cartItems", "items":
		req.CartItems, err = decodeCartItems(d)
	case "couponCode":
		if d.Next() == jx.Null {
			return d.Null()
		}
		req.CouponCode, err = d.Str()
	case "shippingInfo", "shippingAddress":
		err = req.ShippingInfo.decode(d)
	case "paymentMethod":
		req.PaymentMethod, err = d.Str()
	default:
		// isFirstOrder is derived from order history, never trusted.
		err = d.Skip()
	}
	return err
}

// validateCouponRequest is the POST /api/coupons/validate body.
type validateCouponRequest struct {
	Code      string     `json:"code" validate:"required,max=20"`
	CartItems []cartItem `json:"cartItems" validate:"required,min=1,max=100,dive"`
}

func decodeValidateCoupon(d *jx.Decoder, key string, req *validateCouponRequest) error {
	var err error
	switch key {
	case "code", "couponCode":
		req.Code, err = d.Str()
	case "cartItems", "items":
		req.CartItems, err = decodeCartItems(d)
	default:
		err = d.Skip()
	}
	return err
}

// couponRequest is the admin create/update body.
type couponRequest struct {
	Code                 string              `json:"code" validate:"required,min=3,max=20"`
	Description          string              `json:"description" validate:"max=500"`
	Type                 string              `json:"type" validate:"required,oneof=percentage fixed"`
	DiscountValue        decimal.Decimal     `json:"discountValue"`
	MinOrderAmount       decimal.Decimal     `json:"minOrderAmount"`
	MaxDiscountAmount    decimal.NullDecimal `json:"maxDiscountAmount"`
	UsageLimit           *int                `json:"usageLimit" validate:"omitempty,min=1"`
	StartDate            time.Time           `json:"startDate" validate:"required"`
	EndDate              time.Time           `json:"endDate" validate:"required,gtfield=StartDate"`
	ApplicableCategories []string            `json:"applicableCategories" validate:"max=50,dive,required"`
	ApplicableProductIDs []string            `json:"applicableProducts" validate:"max=500,dive,required"`
	FirstOrderOnly       bool                `json:"isFirstOrderOnly"`
	Active               *bool               `json:"isActive"`
}

func decodeCouponRequest(d *jx.Decoder, key string, req *couponRequest) error {
	var err error
	switch key {
	case "code":
		req.Code, err = d.Str()
	case "description":
		req.Description, err = d.Str()
	case "type", "discountType":
		req.Type, err = d.Str()
	case "discountValue":
		req.DiscountValue, err = decodeDecimal(d, key)
	case "minOrderAmount":
		req.MinOrderAmount, err = decodeDecimal(d, key)
	case "maxDiscountAmount":
		req.MaxDiscountAmount, err = decodeNullDecimal(d, key)
	case "usageLimit":
		req.UsageLimit, err = decodeOptInt(d)
	case "startDate":
		req.StartDate, err = decodeTime(d, key)
	case "endDate":
		req.EndDate, err = decodeTime(d, key)
	case "applicableCategories":
		req.ApplicableCategories, err = decodeStrings(d)
	case "applicableProducts", "applicableProductIds":
		req.ApplicableProductIDs, err = decodeStrings(d)
	case "isFirstOrderOnly":
		req.FirstOrderOnly, err = d.Bool()
	case "isActive":
		var v bool
		v, err = d.Bool()
		req.Active = &v
	default:
		err = d.Skip()
	}
	return err
}

func (req *couponRequest) toDomain() *coupon.Coupon {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &coupon.Coupon{
		Code:                 req.Code,
		Description:          req.Description,
		Type:                 coupon.DiscountType(req.Type),
		DiscountValue:        req.DiscountValue,
		MinOrderAmount:       req.MinOrderAmount,
		MaxDiscountAmount:    req.MaxDiscountAmount,
		UsageLimit:           req.UsageLimit,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		ApplicableCategories: req.ApplicableCategories,
		ApplicableProductIDs: req.ApplicableProductIDs,
		FirstOrderOnly:       req.FirstOrderOnly,
		Active:               active,
	}
}

type activeRequest struct {
	Active *bool `json:"isActive" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered cancelled"`
}

type paymentRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required,oneof=paid failed refunded"`
}

// singleField decodes a body holding one interesting key into dst.
func singleField(name string, dst func(d *jx.Decoder) error) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		return dst(d)
	}
}
