package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
)

type couponDoc struct {
	Code                 string                `bson:"_id"`
	Description          string                `bson:"description"`
	Type                 string                `bson:"type"`
	DiscountValue        primitive.Decimal128  `bson:"discountValue"`
	MinOrderAmount       primitive.Decimal128  `bson:"minOrderAmount"`
	MaxDiscountAmount    *primitive.Decimal128 `bson:"maxDiscountAmount"`
	UsageLimit           *int                  `bson:"usageLimit"`
	UsedCount            int                   `bson:"usedCount"`
	StartDate            time.Time             `bson:"startDate"`
	EndDate              time.Time             `bson:"endDate"`
	ApplicableCategories []string              `bson:"applicableCategories"`
	ApplicableProductIDs []string              `bson:"applicableProductIds"`
	FirstOrderOnly       bool                  `bson:"isFirstOrderOnly"`
	Active               bool                  `bson:"isActive"`
	CreatedAt            time.Time             `bson:"createdAt"`
	UpdatedAt            time.Time             `bson:"updatedAt"`
}

func toCouponDoc(c *coupon.Coupon) (couponDoc, error) {
	d := couponDoc{
		Code:                 c.Code,
		Description:          c.Description,
		Type:                 string(c.Type),
		UsageLimit:           c.UsageLimit,
		UsedCount:            c.UsedCount,
		StartDate:            c.StartDate,
		EndDate:              c.EndDate,
		ApplicableCategories: nonNil(c.ApplicableCategories),
		ApplicableProductIDs: nonNil(c.ApplicableProductIDs),
		FirstOrderOnly:       c.FirstOrderOnly,
		Active:               c.Active,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	var err error
	if d.DiscountValue, err = toDecimal128(c.DiscountValue); err != nil {
		return d, fmt.Errorf("encoding coupon %q discount value: %w", c.Code, err)
	}
	if d.MinOrderAmount, err = toDecimal128(c.MinOrderAmount); err != nil {
		return d, fmt.Errorf("encoding coupon %q minimum order amount: %w", c.Code, err)
	}
	if c.MaxDiscountAmount.Valid {
		v, err := toDecimal128(c.MaxDiscountAmount.Decimal)
		if err != nil {
			return d, fmt.Errorf("encoding coupon %q maximum discount amount: %w", c.Code, err)
		}
		d.MaxDiscountAmount = &v
	}
	return d, nil
}

func (d couponDoc) toDomain() (coupon.Coupon, error) {
	c := coupon.Coupon{
		Code:                 d.Code,
		Description:          d.Description,
		Type:                 coupon.DiscountType(d.Type),
		UsageLimit:           d.UsageLimit,
		UsedCount:            d.UsedCount,
		StartDate:            d.StartDate.UTC(),
		EndDate:              d.EndDate.UTC(),
		ApplicableCategories: d.ApplicableCategories,
		ApplicableProductIDs: d.ApplicableProductIDs,
		FirstOrderOnly:       d.FirstOrderOnly,
		Active:               d.Active,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
	var err error
	if c.DiscountValue, err = fromDecimal128(d.DiscountValue); err != nil {
		return c, err
	}
	if c.MinOrderAmount, err = fromDecimal128(d.MinOrderAmount); err != nil {
		return c, err
	}
	if d.MaxDiscountAmount != nil {
		v, err := fromDecimal128(*d.MaxDiscountAmount)
		if err != nil {
			return c, err
		}
		c.MaxDiscountAmount = decimal.NewNullDecimal(v)
	}
	return c, nil
}

// definition is the set of fields an admin edit or import may replace.
func (d couponDoc) definition() bson.M {
	return bson.M{
		"description":          d.Description,
		"type":                 d.Type,
		"discountValue":        d.DiscountValue,
		"minOrderAmount":       d.MinOrderAmount,
		"maxDiscountAmount":    d.MaxDiscountAmount,
		"usageLimit":           d.UsageLimit,
		"startDate":            d.StartDate,
		"endDate":              d.EndDate,
		"applicableCategories": d.ApplicableCategories,
		"applicableProductIds": d.ApplicableProductIDs,
		"isFirstOrderOnly":     d.FirstOrderOnly,
		"isActive":             d.Active,
		"updatedAt":            d.UpdatedAt,
	}
}

// upsertPipeline replaces the definition of an existing coupon or inserts a
// fresh one. usedCount is never reset and usageLimit is never lowered below it.
func (d couponDoc) upsertPipeline() mongo.Pipeline {
	used := bson.M{"$ifNull": bson.A{"$usedCount", 0}}
	set := bson.M{}
	for k, v := range d.definition() {
		// Pipeline stages read "$..." strings as field paths.
		set[k] = bson.M{"$literal": v}
	}
	set["usedCount"] = used
	set["createdAt"] = bson.M{"$ifNull": bson.A{"$createdAt", d.CreatedAt}}
	if d.UsageLimit != nil {
		set["usageLimit"] = bson.M{"$max": bson.A{used, *d.UsageLimit}}
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// redeemFilter matches the coupon only while a use is left.
func redeemFilter(code string) bson.M {
	return bson.M{
		"_id": code,
		"$or": bson.A{
			bson.M{"usageLimit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
		},
	}
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by MongoDB.
type CouponRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewCouponRepository returns a CouponRepository on db's coupons collection.
func NewCouponRepository(db *mongo.Database) *CouponRepository {
	return &CouponRepository{coll: db.Collection(CouponsCollection), now: time.Now}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var d couponDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": code}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	c, err := d.toDomain()
	if err != nil {
		return nil, fmt.Errorf("decoding coupon %q: %w", code, err)
	}
	return &c, nil
}

// List returns a page of coupons ordered newest first and the total count.
func (r *CouponRepository) List(ctx context.Context, page coupon.Page) ([]coupon.Coupon, int, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	var docs []couponDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}

	out := make([]coupon.Coupon, 0, len(docs))
	for _, d := range docs {
		c, err := d.toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("decoding coupon %q: %w", d.Code, err)
		}
		out = append(out, c)
	}
	return out, int(total), nil
}

// Create inserts a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	d, err := toCouponDoc(c)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts a coupon or replaces the definition of an existing one,
// keeping its used count and never lowering its usage limit below it.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	d, err := toCouponDoc(c)
	if err != nil {
		return err
	}
	if _, err := r.coll.UpdateByID(ctx, c.Code, d.upsertPipeline(), options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the mutable fields of a coupon, leaving usedCount alone.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	d, err := toCouponDoc(c)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateByID(ctx, c.Code, bson.M{"$set": d.definition()})
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if res.MatchedCount == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// SetActive toggles the coupon's active flag.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	res, err := r.coll.UpdateByID(ctx, code, bson.M{"$set": bson.M{
		"isActive":  active,
		"updatedAt": r.now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("setting coupon %q active: %w", code, err)
	}
	if res.MatchedCount == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": code})
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if res.DeletedCount == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem increments usedCount with a filter that only matches while a use is
// left, so the check and the increment are one atomic document update.
func (r *CouponRepository) Redeem(ctx context.Context, code string) error {
	res, err := r.coll.UpdateOne(ctx, redeemFilter(code), bson.M{
		"$inc": bson.M{"usedCount": 1},
		"$set": bson.M{"updatedAt": r.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	exists, err := existsByID(ctx, r.coll, code)
	if err != nil {
		return fmt.Errorf("checking coupon %q: %w", code, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageLimitReached
}
