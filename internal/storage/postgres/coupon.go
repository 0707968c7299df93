package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
)

const couponColumns = `code, description, discount_type, discount_value, min_order_amount,
	max_discount_amount, usage_limit, used_count, start_date, end_date,
	applicable_categories, applicable_product_ids, first_order_only, active,
	created_at, updated_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`

	countCouponsSQL = `SELECT count(*) FROM coupons`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			usage_limit = CASE WHEN EXCLUDED.usage_limit IS NULL THEN NULL
				ELSE GREATEST(EXCLUDED.usage_limit, coupons.used_count) END,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			applicable_categories = EXCLUDED.applicable_categories,
			applicable_product_ids = EXCLUDED.applicable_product_ids,
			first_order_only = EXCLUDED.first_order_only,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`

	updateCouponSQL = `UPDATE coupons SET
			description = $2,
			discount_type = $3,
			discount_value = $4,
			min_order_amount = $5,
			max_discount_amount = $6,
			usage_limit = $7,
			start_date = $8,
			end_date = $9,
			applicable_categories = $10,
			applicable_product_ids = $11,
			first_order_only = $12,
			active = $13,
			updated_at = $14
		WHERE code = $1`

	setCouponActiveSQL = `UPDATE coupons SET active = $2, updated_at = now() WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`

	// redeemCouponSQL is a single conditional increment. Concurrent
	// redemptions of the last use serialize on the row lock and the loser
	// re-evaluates the predicate against the committed count.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no coupon has the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns a page of coupons ordered newest first and the total count.
func (r *CouponRepository) List(ctx context.Context, page coupon.Page) ([]coupon.Coupon, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countCouponsSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}

	rows, err := q.Query(ctx, listCouponsSQL, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, total, nil
}

// Create inserts a new coupon. Returns coupon.ErrDuplicateCode when the code
// is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts a coupon or replaces the definition of an existing one,
// keeping its used count. Bulk imports use it.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the mutable fields of a coupon. The used count is never
// written here so concurrent redemptions are not lost.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCouponSQL,
		c.Code, c.Description, string(c.Type), c.DiscountValue, c.MinOrderAmount,
		c.MaxDiscountAmount, c.UsageLimit, c.StartDate, c.EndDate,
		nonNil(c.ApplicableCategories), nonNil(c.ApplicableProductIDs),
		c.FirstOrderOnly, c.Active, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// SetActive toggles the coupon's active flag.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("setting coupon %q active: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem atomically consumes one use of the coupon.
// Returns coupon.ErrUsageLimitReached when no use is left and
// coupon.ErrNotFound when the code does not exist.
func (r *CouponRepository) Redeem(ctx context.Context, code string) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", code, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageLimitReached
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.Code, c.Description, string(c.Type), c.DiscountValue, c.MinOrderAmount,
		c.MaxDiscountAmount, c.UsageLimit, c.UsedCount, c.StartDate, c.EndDate,
		nonNil(c.ApplicableCategories), nonNil(c.ApplicableProductIDs),
		c.FirstOrderOnly, c.Active, c.CreatedAt, c.UpdatedAt,
	}
}

// nonNil maps a nil slice to an empty one so NOT NULL array columns accept it.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue, &c.MinOrderAmount,
		&c.MaxDiscountAmount, &c.UsageLimit, &c.UsedCount, &c.StartDate, &c.EndDate,
		&c.ApplicableCategories, &c.ApplicableProductIDs, &c.FirstOrderOnly, &c.Active,
		&c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.DiscountType(discountType)
	return c, err
}
