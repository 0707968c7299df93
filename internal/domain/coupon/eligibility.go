package coupon

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// Eligibility failure reasons.
const (
	ReasonExpiredOrInactive = "coupon is expired or inactive"
	ReasonFirstOrderOnly    = "coupon is valid for first orders only"
	ReasonNotApplicable     = "coupon is not applicable to cart contents"
)

// Cart is the part of a checkout the eligibility rules look at.
type Cart struct {
	Amount       decimal.Decimal
	Categories   []string
	ProductIDs   []string
	IsFirstOrder bool
}

// MinimumAmountReason formats the minimum order failure reason.
func MinimumAmountReason(min decimal.Decimal) string {
	return fmt.Sprintf("minimum order amount %s required", min.String())
}

// CanApply checks whether c may be applied to cart at now. Checks run in a
// fixed order and stop at the first failure, which is returned as an
// *errs.IneligibleError carrying the specific reason. It never mutates c.
func CanApply(c *Coupon, cart Cart, now time.Time) error {
	if !c.IsCurrentlyValid(now) {
		return errs.Ineligible(c.Code, ReasonExpiredOrInactive, nil)
	}
	if cart.Amount.LessThan(c.MinOrderAmount) {
		return errs.Ineligible(c.Code, MinimumAmountReason(c.MinOrderAmount), nil)
	}
	if c.FirstOrderOnly && !cart.IsFirstOrder {
		return errs.Ineligible(c.Code, ReasonFirstOrderOnly, nil)
	}
	if len(c.ApplicableCategories) > 0 && !intersects(c.ApplicableCategories, cart.Categories) {
		return errs.Ineligible(c.Code, ReasonNotApplicable, nil)
	}
	if len(c.ApplicableProductIDs) > 0 && !intersects(c.ApplicableProductIDs, cart.ProductIDs) {
		return errs.Ineligible(c.Code, ReasonNotApplicable, nil)
	}
	return nil
}

func intersects(allowed, have []string) bool {
	for _, v := range have {
		if slices.Contains(allowed, v) {
			return true
		}
	}
	return false
}
