package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// ReferenceCounter reports how many orders reference a coupon code.
type ReferenceCounter interface {
	CountByCoupon(ctx context.Context, code string) (int, error)
}

// Quote is the result of a successful eligibility check.
type Quote struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Service implements coupon administration, eligibility checks and
// redemption on top of a Repository.
type Service struct {
	repo Repository
	refs ReferenceCounter
	now  func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, refs ReferenceCounter) *Service {
	return &Service{repo: repo, refs: refs, now: time.Now}
}

// Check looks up code and verifies it against cart. On success it returns the
// coupon and the discount it grants on cart.Amount. Nothing is mutated.
func (s *Service) Check(ctx context.Context, code string, cart Cart) (*Quote, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := CanApply(c, cart, s.now()); err != nil {
		return nil, err
	}
	return &Quote{
		Coupon:   c,
		Discount: CalculateDiscount(c, cart.Amount),
	}, nil
}

// Redeem consumes one use of code. Callers invoke it once per persisted
// order; duplicate calls are not detected here.
func (s *Service) Redeem(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := s.repo.Redeem(ctx, code); err != nil {
		switch {
		case errors.Is(err, ErrUsageLimitReached):
			return errs.Ineligible(code, ReasonExpiredOrInactive, err)
		case errors.Is(err, ErrNotFound):
			return errs.NotFound("coupon", code, err)
		default:
			return errs.Persistence("redeem coupon", err)
		}
	}
	zctx.From(ctx).Info("Coupon redeemed", zap.String("code", code))
	return nil
}

// Get returns the coupon with the given code.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.NotFound("coupon", code, err)
		}
		return nil, errs.Persistence("find coupon", err)
	}
	return c, nil
}

// List returns a page of coupons, newest first, and the total count.
func (s *Service) List(ctx context.Context, page Page) ([]Coupon, int, error) {
	coupons, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, errs.Persistence("list coupons", err)
	}
	return coupons, total, nil
}

// Create validates and stores a new coupon with a zero usage count.
func (s *Service) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	c.UsedCount = 0
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, errs.Conflict(err, "coupon code %s already exists", c.Code)
		}
		return nil, errs.Persistence("create coupon", err)
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("code", c.Code),
		zap.String("type", string(c.Type)),
	)
	return c, nil
}

// Update replaces the mutable fields of an existing coupon. The code, usage
// count and creation time are kept from the stored coupon.
func (s *Service) Update(ctx context.Context, c *Coupon) (*Coupon, error) {
	existing, err := s.Get(ctx, c.Code)
	if err != nil {
		return nil, err
	}

	c.Code = existing.Code
	c.UsedCount = existing.UsedCount
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.NotFound("coupon", c.Code, err)
		}
		return nil, errs.Persistence("update coupon", err)
	}

	zctx.From(ctx).Info("Coupon updated", zap.String("code", c.Code))
	return c, nil
}

// SetActive enables or disables a coupon independently of its window.
func (s *Service) SetActive(ctx context.Context, code string, active bool) (*Coupon, error) {
	code = NormalizeCode(code)
	if err := s.repo.SetActive(ctx, code, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.NotFound("coupon", code, err)
		}
		return nil, errs.Persistence("set coupon active", err)
	}

	zctx.From(ctx).Info("Coupon toggled", zap.String("code", code), zap.Bool("active", active))
	return s.Get(ctx, code)
}

// Delete removes a coupon that no order references. Referenced coupons must
// be deactivated instead.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	n, err := s.refs.CountByCoupon(ctx, code)
	if err != nil {
		return errs.Persistence("count coupon references", err)
	}
	if n > 0 {
		return errs.Conflict(nil, "coupon %s is referenced by %d orders; deactivate it instead", code, n)
	}

	if err := s.repo.Delete(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.NotFound("coupon", code, err)
		}
		return errs.Persistence("delete coupon", err)
	}

	zctx.From(ctx).Info("Coupon deleted", zap.String("code", code))
	return nil
}
