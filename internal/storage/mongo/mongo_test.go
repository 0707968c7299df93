package mongo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestDecimal128(t *testing.T) {
	for _, v := range []string{"0", "249", "12.5", "0.01", "99999999.99"} {
		d, err := toDecimal128(dec(v))
		require.NoError(t, err)
		got, err := fromDecimal128(d)
		require.NoError(t, err)
		assert.True(t, dec(v).Equal(got), "value %s came back as %s", v, got)
	}
}

func TestDecimal128OutOfRange(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   decimal.Decimal
	}{
		{"exponent below range", decimal.New(1, -7000)},
		{"too many digits", dec("1.23456789012345678901234567890123456")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toDecimal128(tt.in)
			require.Error(t, err)

			require.NotPanics(t, func() {
				_, err = toCouponDoc(&coupon.Coupon{Code: "TINY", DiscountValue: tt.in})
			})
			assert.ErrorContains(t, err, `coupon "TINY"`)

			_, err = toCouponDoc(&coupon.Coupon{
				Code:              "CAP",
				MaxDiscountAmount: decimal.NewNullDecimal(tt.in),
			})
			assert.Error(t, err)

			_, err = toProductDoc(&product.Product{ID: "p1", Price: tt.in})
			assert.Error(t, err)

			_, err = toOrderDoc(&order.Order{ID: "o1", TotalAmount: tt.in})
			assert.Error(t, err)
			_, err = toOrderDoc(&order.Order{ID: "o2", Items: []order.LineItem{{ProductID: "p1", UnitPrice: tt.in}}})
			assert.Error(t, err)
		})
	}
}

func TestCouponDoc(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unlimited without cap", func(t *testing.T) {
		c := &coupon.Coupon{
			Code:           "WELCOME",
			Type:           coupon.DiscountFixed,
			DiscountValue:  dec("100"),
			MinOrderAmount: dec("0"),
			StartDate:      start,
			EndDate:        start.Add(48 * time.Hour),
			FirstOrderOnly: true,
			Active:         true,
		}

		doc, err := toCouponDoc(c)
		require.NoError(t, err)
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)

		var stored bson.M
		require.NoError(t, bson.Unmarshal(raw, &stored))
		assert.Equal(t, "WELCOME", stored["_id"])
		assert.Nil(t, stored["usageLimit"])
		assert.Nil(t, stored["maxDiscountAmount"])
		assert.Equal(t, bson.A{}, stored["applicableCategories"])

		var d couponDoc
		require.NoError(t, bson.Unmarshal(raw, &d))
		got, err := d.toDomain()
		require.NoError(t, err)
		assert.Nil(t, got.UsageLimit)
		assert.False(t, got.MaxDiscountAmount.Valid)
		assert.True(t, got.FirstOrderOnly)
		assert.True(t, dec("100").Equal(got.DiscountValue))
		assert.Equal(t, start, got.StartDate)
	})

	t.Run("limited with cap", func(t *testing.T) {
		limit := 3
		c := &coupon.Coupon{
			Code:                 "SWEET10",
			Type:                 coupon.DiscountPercentage,
			DiscountValue:        dec("10"),
			MinOrderAmount:       dec("500"),
			MaxDiscountAmount:    decimal.NewNullDecimal(dec("75")),
			UsageLimit:           &limit,
			UsedCount:            2,
			StartDate:            start,
			EndDate:              start.Add(time.Hour),
			ApplicableCategories: []string{"thekua"},
		}

		doc, err := toCouponDoc(c)
		require.NoError(t, err)
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)
		var d couponDoc
		require.NoError(t, bson.Unmarshal(raw, &d))
		got, err := d.toDomain()
		require.NoError(t, err)

		require.NotNil(t, got.UsageLimit)
		assert.Equal(t, 3, *got.UsageLimit)
		assert.Equal(t, 2, got.UsedCount)
		assert.True(t, dec("75").Equal(got.MaxDiscountAmount.Decimal))
		assert.Equal(t, []string{"thekua"}, got.ApplicableCategories)
	})
}

func TestCouponDefinitionLeavesUsage(t *testing.T) {
	limit := 5
	d, err := toCouponDoc(&coupon.Coupon{Code: "KEEP", UsageLimit: &limit, UsedCount: 4})
	require.NoError(t, err)
	def := d.definition()
	assert.NotContains(t, def, "usedCount")
	assert.NotContains(t, def, "_id")
	assert.NotContains(t, def, "createdAt")
	assert.Contains(t, def, "usageLimit")
}

func TestCouponUpsertPipeline(t *testing.T) {
	used := bson.M{"$ifNull": bson.A{"$usedCount", 0}}
	stage := func(t *testing.T, p mongo.Pipeline) bson.M {
		t.Helper()
		require.Len(t, p, 1)
		require.Len(t, p[0], 1)
		require.Equal(t, "$set", p[0][0].Key)
		set, ok := p[0][0].Value.(bson.M)
		require.True(t, ok)
		return set
	}

	t.Run("limit never drops below used count", func(t *testing.T) {
		limit := 2
		d, err := toCouponDoc(&coupon.Coupon{Code: "SWEET10", UsageLimit: &limit, UsedCount: 0})
		require.NoError(t, err)

		set := stage(t, d.upsertPipeline())
		assert.Equal(t, bson.M{"$max": bson.A{used, 2}}, set["usageLimit"])
		assert.Equal(t, used, set["usedCount"])
		assert.Equal(t, bson.M{"$ifNull": bson.A{"$createdAt", d.CreatedAt}}, set["createdAt"])
	})

	t.Run("unlimited", func(t *testing.T) {
		d, err := toCouponDoc(&coupon.Coupon{Code: "OPEN"})
		require.NoError(t, err)

		set := stage(t, d.upsertPipeline())
		assert.Equal(t, bson.M{"$literal": (*int)(nil)}, set["usageLimit"])
	})

	t.Run("definition values are literals", func(t *testing.T) {
		d, err := toCouponDoc(&coupon.Coupon{
			Code:                 "DOLLAR",
			Description:          "$usedCount off",
			ApplicableCategories: []string{"$type"},
		})
		require.NoError(t, err)

		set := stage(t, d.upsertPipeline())
		assert.Equal(t, bson.M{"$literal": "$usedCount off"}, set["description"])
		assert.Equal(t, bson.M{"$literal": []string{"$type"}}, set["applicableCategories"])
		assert.NotContains(t, set, "_id")
	})
}

func TestRedeemFilter(t *testing.T) {
	f := redeemFilter("LAST1")
	assert.Equal(t, "LAST1", f["_id"])

	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"usageLimit": nil}, or[0])
	assert.Equal(t,
		bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
		or[1],
	)
}

func TestOrderDoc(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	o := &order.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Items: []order.LineItem{
			{ProductID: "p1", Name: "Classic Thekua", Category: "thekua", UnitPrice: dec("249"), Quantity: 2},
			{ProductID: "p2", Name: "Besan Laddoo", Category: "laddoo", UnitPrice: dec("100"), Quantity: 1},
		},
		ShippingAddress: order.ShippingAddress{
			FullName: "Asha Devi", Phone: "9800000000", Line1: "12 Station Road",
			City: "Patna", PostalCode: "800001",
		},
		PaymentMethod:   order.PaymentCOD,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		Subtotal:        dec("598"),
		ShippingCharges: dec("50"),
		DiscountAmount:  dec("60"),
		TotalAmount:     dec("588"),
		CouponCode:      "SWEET10",
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	doc, err := toOrderDoc(o)
	require.NoError(t, err)
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var d orderDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	got, err := d.toDomain()
	require.NoError(t, err)

	require.NoError(t, got.Validate())
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	require.Len(t, got.Items, 2)
	assert.True(t, dec("249").Equal(got.Items[0].UnitPrice))
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, dec("588").Equal(got.TotalAmount))
	assert.Equal(t, "SWEET10", got.CouponCode)
	assert.Equal(t, now, got.CreatedAt)
}

func TestCustomerFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, customerFilter(""))
	assert.Equal(t, bson.M{"customerId": "cust-1"}, customerFilter("cust-1"))
}
