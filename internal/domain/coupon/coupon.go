package coupon

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the order amount.
	DiscountFixed DiscountType = "fixed"
)

// Code length bounds after normalization.
const (
	MinCodeLen = 3
	MaxCodeLen = 20
)

var (
	// ErrNotFound is returned by repositories when no coupon has the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned by repositories when the code is taken.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrUsageLimitReached is returned by Redeem when usedCount has reached
	// usageLimit.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// MoneyScale is the number of decimal places stored for amounts.
const MoneyScale = 2

// maxMoney is the exclusive upper bound of a stored amount.
var maxMoney = decimal.New(1, 10)

// checkMoney rejects amounts the stores cannot hold exactly.
func checkMoney(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(MoneyScale)) {
		return errs.Validation(field, "must have at most %d decimal places", MoneyScale)
	}
	if v.Abs().GreaterThanOrEqual(maxMoney) {
		return errs.Validation(field, "must be below %s", maxMoney)
	}
	return nil
}

// Coupon is a discount code with a validity window, a usage cap and
// applicability rules.
type Coupon struct {
	Code                 string
	Description          string
	Type                 DiscountType
	DiscountValue        decimal.Decimal
	MinOrderAmount       decimal.Decimal
	MaxDiscountAmount    decimal.NullDecimal
	UsageLimit           *int
	UsedCount            int
	StartDate            time.Time
	EndDate              time.Time
	ApplicableCategories []string
	ApplicableProductIDs []string
	FirstOrderOnly       bool
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCurrentlyValid reports whether the coupon is active, inside its window at
// now and has redemptions left.
func (c *Coupon) IsCurrentlyValid(now time.Time) bool {
	if !c.Active {
		return false
	}
	if now.Before(c.StartDate) || now.After(c.EndDate) {
		return false
	}
	return !c.Exhausted()
}

// Exhausted reports whether the usage limit is set and reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// Validate checks the coupon's field constraints. It returns an
// *errs.ValidationError naming the first offending field.
func (c *Coupon) Validate() error {
	switch n := len(c.Code); {
	case n < MinCodeLen || n > MaxCodeLen:
		return errs.Validation("code", "must be %d-%d characters", MinCodeLen, MaxCodeLen)
	case !codePattern.MatchString(c.Code):
		return errs.Validation("code", "must contain only A-Z, 0-9, '_' or '-'")
	}

	if err := checkMoney("discountValue", c.DiscountValue); err != nil {
		return err
	}
	switch c.Type {
	case DiscountPercentage:
		if !c.DiscountValue.IsPositive() || c.DiscountValue.GreaterThan(hundred) {
			return errs.Validation("discountValue", "percentage must be in (0, 100]")
		}
	case DiscountFixed:
		if c.DiscountValue.IsNegative() {
			return errs.Validation("discountValue", "must not be negative")
		}
	default:
		return errs.Validation("type", "unsupported discount type %q", c.Type)
	}

	if err := checkMoney("minOrderAmount", c.MinOrderAmount); err != nil {
		return err
	}
	if c.MinOrderAmount.IsNegative() {
		return errs.Validation("minOrderAmount", "must not be negative")
	}
	if c.MaxDiscountAmount.Valid {
		if err := checkMoney("maxDiscountAmount", c.MaxDiscountAmount.Decimal); err != nil {
			return err
		}
		if c.MaxDiscountAmount.Decimal.IsNegative() {
			return errs.Validation("maxDiscountAmount", "must not be negative")
		}
	}
	if c.UsageLimit != nil {
		if *c.UsageLimit < 1 {
			return errs.Validation("usageLimit", "must be at least 1")
		}
		if c.UsedCount > *c.UsageLimit {
			return errs.Validation("usageLimit", "must not be below used count %d", c.UsedCount)
		}
	}
	if c.UsedCount < 0 {
		return errs.Validation("usedCount", "must not be negative")
	}
	if !c.EndDate.After(c.StartDate) {
		return errs.Validation("endDate", "must be after startDate")
	}
	return nil
}

// Page selects a slice of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Repository persists coupons. Codes passed in are already normalized.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, page Page) ([]Coupon, int, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
	// Redeem increments usedCount by one only if usedCount < usageLimit (or
	// no limit is set), as a single atomic store operation.
	Redeem(ctx context.Context, code string) error
}
