package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
)

var testPepper = []byte("test-pepper")

const (
	customerKey = "cust-key"
	adminKey    = "admin-key"
)

type mockProducts struct {
	products []product.Product
	err      error
}

func (m *mockProducts) List(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProducts) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return m.products, m.err
}

type mockAPIKeys map[string]*auth.APIKeyInfo

func (m mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return info, nil
}

type mockOrders struct {
	checkoutReq order.CheckoutRequest
	checkout    *order.CheckoutResult
	subtotal    decimal.Decimal
	items       []order.LineItem
	firstOrder  bool
	order       *order.Order
	advancedTo  order.Status
	paidTo      order.PaymentStatus
	err         error
}

func (m *mockOrders) Checkout(_ context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error) {
	m.checkoutReq = req
	return m.checkout, m.err
}

func (m *mockOrders) Snapshot(context.Context, []order.ItemRequest) ([]order.LineItem, decimal.Decimal, error) {
	return m.items, m.subtotal, m.err
}

func (m *mockOrders) IsFirstOrder(context.Context, string) (bool, error) {
	return m.firstOrder, nil
}

func (m *mockOrders) Get(context.Context, string, order.Viewer) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) List(context.Context, order.Viewer, int, int) ([]order.Order, int, error) {
	if m.order == nil {
		return nil, 0, m.err
	}
	return []order.Order{*m.order}, 1, m.err
}

func (m *mockOrders) Cancel(context.Context, string, order.Viewer) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) Advance(_ context.Context, _ string, to order.Status) (*order.Order, error) {
	m.advancedTo = to
	return m.order, m.err
}

func (m *mockOrders) SetPaymentStatus(_ context.Context, _ string, to order.PaymentStatus) (*order.Order, error) {
	m.paidTo = to
	return m.order, m.err
}

type mockCoupons struct {
	quote   *coupon.Quote
	cart    coupon.Cart
	created *coupon.Coupon
	deleted string
	err     error
}

func (m *mockCoupons) Check(_ context.Context, _ string, cart coupon.Cart) (*coupon.Quote, error) {
	m.cart = cart
	return m.quote, m.err
}

func (m *mockCoupons) Get(context.Context, string) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.created, nil
}

func (m *mockCoupons) List(context.Context, coupon.Page) ([]coupon.Coupon, int, error) {
	return nil, 0, m.err
}

func (m *mockCoupons) Create(_ context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	m.created = c
	if m.err != nil {
		return nil, m.err
	}
	return c, nil
}

func (m *mockCoupons) Update(_ context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	m.created = c
	if m.err != nil {
		return nil, m.err
	}
	return c, nil
}

func (m *mockCoupons) SetActive(_ context.Context, _ string, active bool) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &coupon.Coupon{Code: "SAVE10", Active: active}, nil
}

func (m *mockCoupons) Delete(_ context.Context, code string) error {
	m.deleted = code
	return m.err
}

type fixture struct {
	products *mockProducts
	orders   *mockOrders
	coupons  *mockCoupons
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: &mockProducts{products: []product.Product{{
			ID:       "p1",
			Name:     "Kaju Katli",
			Price:    decimal.RequireFromString("450"),
			Category: "sweets",
			Image:    product.Image{Thumbnail: "/img/p1-thumb.jpg"},
		}}},
		orders:  &mockOrders{},
		coupons: &mockCoupons{},
	}
	keys := mockAPIKeys{
		HashAPIKey(testPepper, customerKey): {
			ID:         "k1",
			KeyHash:    HashAPIKey(testPepper, customerKey),
			CustomerID: "cust-1",
			Scopes:     []string{auth.ScopeCustomer},
		},
		HashAPIKey(testPepper, adminKey): {
			ID:      "k2",
			KeyHash: HashAPIKey(testPepper, adminKey),
			Scopes:  []string{auth.ScopeAdmin},
		},
	}
	h := New(Config{ImageBaseURL: "https://cdn.example.com"}, f.products, f.orders, f.coupons)
	f.router = h.Routes(NewSecurity(keys, testPepper), nil)
	return f
}

func (f *fixture) do(method, path, key, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// fields decodes the top-level members of a JSON object. Strings are
// unquoted; other values are kept as raw JSON.
func fields(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.String {
			s, err := d.Str()
			out[key] = s
			return err
		}
		raw, err := d.Raw()
		out[key] = raw.String()
		return err
	}), w.Body.String())
	return out
}

func sampleOrder() *order.Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:         "ord-1",
		CustomerID: "cust-1",
		Items: []order.LineItem{{
			ProductID: "p1",
			Name:      "Kaju Katli",
			Category:  "sweets",
			UnitPrice: decimal.RequireFromString("450"),
			Quantity:  2,
		}},
		ShippingAddress: order.ShippingAddress{
			FullName: "Asha", Phone: "9876543210", Line1: "12 MG Road", City: "Pune", PostalCode: "411001",
		},
		PaymentMethod:   order.PaymentCOD,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		Subtotal:        decimal.RequireFromString("900"),
		ShippingCharges: decimal.RequireFromString("50"),
		DiscountAmount:  decimal.RequireFromString("90"),
		TotalAmount:     decimal.RequireFromString("860"),
		CouponCode:      "SAVE10",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

const checkoutBody = `{
	"cartItems": [{"productId": "p1", "category": "bogus", "price": 1, "quantity": 2}],
	"couponCode": "save10",
	"isFirstOrder": true,
	"shippingInfo": {"fullName": "Asha", "phone": "9876543210", "line1": "12 MG Road", "city": "Pune", "postalCode": "411001"},
	"paymentMethod": "cod"
}`

func TestProducts(t *testing.T) {
	f := newFixture(t)

	t.Run("list", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/products", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"thumbnail":"https://cdn.example.com/img/p1-thumb.jpg"`)
		assert.Contains(t, w.Body.String(), `"price":450`)
	})

	t.Run("get", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/products/p1", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Kaju Katli", fields(t, w)["name"])
	})

	t.Run("unknown", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/products/nope", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.products.err = errors.New("connection reset")
		w := f.do(http.MethodGet, "/api/products", "", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal server error", fields(t, w)["message"])
	})
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"missing key", http.MethodGet, "/api/orders", "", http.StatusUnauthorized},
		{"unknown key", http.MethodGet, "/api/orders", "wrong", http.StatusUnauthorized},
		{"customer on admin route", http.MethodGet, "/api/admin/coupons", customerKey, http.StatusForbidden},
		{"admin on customer route", http.MethodGet, "/api/orders", adminKey, http.StatusOK},
		{"admin on admin route", http.MethodGet, "/api/admin/coupons", adminKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.key, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newFixture(t)
		f.orders.checkout = &order.CheckoutResult{Order: sampleOrder()}

		w := f.do(http.MethodPost, "/api/orders", customerKey, checkoutBody, IdempotencyKeyHeader, "abc-123")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := fields(t, w)
		assert.Equal(t, "ord-1", body["orderId"])
		assert.Equal(t, "860", body["totalAmount"])
		assert.Equal(t, "90", body["discountAmount"])
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, "pending", body["paymentStatus"])

		req := f.orders.checkoutReq
		assert.Equal(t, "cust-1", req.CustomerID)
		assert.Equal(t, "abc-123", req.IdempotencyKey)
		assert.Equal(t, []order.ItemRequest{{ProductID: "p1", Quantity: 2}}, req.Items)
		assert.Equal(t, "save10", req.CouponCode)
		assert.Equal(t, order.PaymentCOD, req.PaymentMethod)
		assert.Equal(t, "411001", req.ShippingAddress.PostalCode)
	})

	t.Run("replayed", func(t *testing.T) {
		f := newFixture(t)
		f.orders.checkout = &order.CheckoutResult{Order: sampleOrder(), Replayed: true}

		w := f.do(http.MethodPost, "/api/orders", customerKey, checkoutBody, IdempotencyKeyHeader, "abc-123")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ineligible coupon", func(t *testing.T) {
		f := newFixture(t)
		f.orders.err = errs.Ineligible("SAVE10", coupon.MinimumAmountReason(decimal.NewFromInt(1000)), nil)

		w := f.do(http.MethodPost, "/api/orders", customerKey, checkoutBody)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := fields(t, w)
		assert.Equal(t, "false", body["valid"])
		assert.Equal(t, "minimum order amount 1000 required", body["reason"])
	})

	t.Run("in flight", func(t *testing.T) {
		f := newFixture(t)
		f.orders.err = errs.Conflict(nil, "request with this Idempotency-Key is in progress")

		w := f.do(http.MethodPost, "/api/orders", customerKey, checkoutBody)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	bad := []struct {
		name  string
		body  string
		field string
	}{
		{"empty cart", `{"cartItems": [], "paymentMethod": "cod", "shippingInfo": {}}`, "cartItems"},
		{"zero quantity", `{"cartItems": [{"productId": "p1", "quantity": 0}], "paymentMethod": "cod"}`, "cartItems[0].quantity"},
		{"unknown payment", strings.Replace(checkoutBody, `"cod"`, `"barter"`, 1), "paymentMethod"},
		{"missing address", strings.Replace(checkoutBody, `"city": "Pune", `, "", 1), "shippingInfo.city"},
		{"malformed", `{"cartItems": [`, ""},
		{"empty body", ``, ""},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, "/api/orders", customerKey, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.field, fields(t, w)["field"])
			assert.Empty(t, f.orders.checkoutReq.Items)
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	f := newFixture(t)
	f.orders.items = sampleOrder().Items
	f.orders.subtotal = decimal.RequireFromString("900")
	f.orders.firstOrder = true
	f.coupons.quote = &coupon.Quote{
		Coupon:   &coupon.Coupon{Code: "SAVE10", Type: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10)},
		Discount: decimal.NewFromInt(90),
	}

	w := f.do(http.MethodPost, "/api/coupons/validate", customerKey,
		`{"code": "save10", "cartItems": [{"productId": "p1", "quantity": 2}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := fields(t, w)
	assert.Equal(t, "true", body["valid"])
	assert.Equal(t, "90", body["discountAmount"])
	assert.Equal(t, "900", body["subtotal"])

	assert.True(t, f.coupons.cart.IsFirstOrder)
	assert.Equal(t, []string{"sweets"}, f.coupons.cart.Categories)
	assert.Equal(t, []string{"p1"}, f.coupons.cart.ProductIDs)
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		f := newFixture(t)
		f.orders.order = sampleOrder()
		w := f.do(http.MethodGet, "/api/orders/ord-1", customerKey, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "SAVE10", fields(t, w)["couponCode"])
	})

	t.Run("get hidden", func(t *testing.T) {
		f := newFixture(t)
		f.orders.err = errs.NotFound("order", "ord-9", nil)
		w := f.do(http.MethodGet, "/api/orders/ord-9", customerKey, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list paging", func(t *testing.T) {
		f := newFixture(t)
		f.orders.order = sampleOrder()
		w := f.do(http.MethodGet, "/api/orders?page=2&limit=500", customerKey, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := fields(t, w)
		assert.Equal(t, "2", body["page"])
		assert.Equal(t, "100", body["limit"])
		assert.Equal(t, "1", body["total"])
	})

	t.Run("list bad page", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodGet, "/api/orders?page=zero", customerKey, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list page out of range", func(t *testing.T) {
		for _, path := range []string{
			"/api/orders?page=9223372036854775807",
			"/api/orders?page=100001",
		} {
			f := newFixture(t)
			w := f.do(http.MethodGet, path, customerKey, "")
			require.Equal(t, http.StatusBadRequest, w.Code, path)
			assert.Equal(t, "page", fields(t, w)["field"], path)
		}

		f := newFixture(t)
		w := f.do(http.MethodGet, "/api/admin/coupons?page=9223372036854775807&limit=100", adminKey, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "page", fields(t, w)["field"])
	})

	t.Run("cancel conflict", func(t *testing.T) {
		f := newFixture(t)
		f.orders.err = errs.Conflict(nil, "cannot move order from shipped to cancelled")
		w := f.do(http.MethodPost, "/api/orders/ord-1/cancel", customerKey, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("advance", func(t *testing.T) {
		f := newFixture(t)
		f.orders.order = sampleOrder()
		w := f.do(http.MethodPost, "/api/admin/orders/ord-1/status", adminKey, `{"status": "processing"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, order.StatusProcessing, f.orders.advancedTo)
	})

	t.Run("advance to unknown status", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/admin/orders/ord-1/status", adminKey, `{"status": "lost"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "status", fields(t, w)["field"])
	})

	t.Run("payment", func(t *testing.T) {
		f := newFixture(t)
		f.orders.order = sampleOrder()
		w := f.do(http.MethodPost, "/api/admin/orders/ord-1/payment", adminKey, `{"paymentStatus": "paid"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.PaymentPaid, f.orders.paidTo)
	})

	t.Run("payment by customer", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/admin/orders/ord-1/payment", customerKey, `{"paymentStatus": "paid"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

const couponBody = `{
	"code": " save10 ",
	"description": "10% off",
	"type": "percentage",
	"discountValue": 10,
	"minOrderAmount": "500",
	"maxDiscountAmount": null,
	"usageLimit": 100,
	"startDate": "2026-01-01T00:00:00Z",
	"endDate": "2026-12-31T23:59:59Z",
	"applicableCategories": ["sweets"]
}`

func TestAdminCoupons(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/admin/coupons", adminKey, couponBody)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		c := f.coupons.created
		require.NotNil(t, c)
		assert.Equal(t, "SAVE10", c.Code)
		assert.Equal(t, coupon.DiscountPercentage, c.Type)
		assert.True(t, c.DiscountValue.Equal(decimal.NewFromInt(10)))
		assert.True(t, c.MinOrderAmount.Equal(decimal.NewFromInt(500)))
		assert.False(t, c.MaxDiscountAmount.Valid)
		require.NotNil(t, c.UsageLimit)
		assert.Equal(t, 100, *c.UsageLimit)
		assert.True(t, c.Active)
		assert.Equal(t, []string{"sweets"}, c.ApplicableCategories)

		body := fields(t, w)
		assert.Equal(t, "null", body["maxDiscountAmount"])
		assert.Equal(t, "100", body["usageLimit"])
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newFixture(t)
		f.coupons.err = errs.Conflict(coupon.ErrDuplicateCode, "coupon code SAVE10 already exists")
		w := f.do(http.MethodPost, "/api/admin/coupons", adminKey, couponBody)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("end before start", func(t *testing.T) {
		f := newFixture(t)
		body := strings.Replace(couponBody, "2026-12-31T23:59:59Z", "2025-12-31T00:00:00Z", 1)
		w := f.do(http.MethodPost, "/api/admin/coupons", adminKey, body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "endDate", fields(t, w)["field"])
	})

	t.Run("bad amount", func(t *testing.T) {
		f := newFixture(t)
		body := strings.Replace(couponBody, `"500"`, `"lots"`, 1)
		w := f.do(http.MethodPost, "/api/admin/coupons", adminKey, body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "minOrderAmount", fields(t, w)["field"])
	})

	t.Run("update uses path code", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPut, "/api/admin/coupons/fest20", adminKey, couponBody)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "FEST20", f.coupons.created.Code)
	})

	t.Run("toggle", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/admin/coupons/SAVE10/active", adminKey, `{"isActive": false}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "false", fields(t, w)["isActive"])
	})

	t.Run("toggle without flag", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/api/admin/coupons/SAVE10/active", adminKey, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodDelete, "/api/admin/coupons/SAVE10", adminKey, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "SAVE10", f.coupons.deleted)
	})

	t.Run("delete referenced", func(t *testing.T) {
		f := newFixture(t)
		f.coupons.err = errs.Conflict(nil, "coupon SAVE10 is referenced by 3 orders; deactivate it instead")
		w := f.do(http.MethodDelete, "/api/admin/coupons/SAVE10", adminKey, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRoutingFallbacks(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/nothing", "", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodDelete, "/api/products", "", "").Code)
}
