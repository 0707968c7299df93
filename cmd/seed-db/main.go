package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appkg "github.com/harsh2243/Desimithaas-sub001/internal/app"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
	"github.com/harsh2243/Desimithaas-sub001/internal/handler"
)

type options struct {
	storage      appkg.Config
	productsFile string
	customerKey  string
	customerID   string
	adminKey     string
	pepper       string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.storage.Storage.Driver, "storage-driver", envOr("THEKUA_STORAGE_DRIVER", appkg.DriverPostgres), "storage backend: postgres or mongo")
	flag.StringVar(&opts.storage.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.storage.Mongo.URI, "mongo-uri", os.Getenv("MONGODB_URI"), "MongoDB URI (or MONGODB_URI env)")
	flag.StringVar(&opts.storage.Mongo.Database, "mongo-database", "thekua", "MongoDB database name")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.customerKey, "customer-key", os.Getenv("THEKUA_SEED_CUSTOMER_KEY"), "customer API key to seed")
	flag.StringVar(&opts.customerID, "customer-id", "demo-customer", "customer the seeded customer key acts for")
	flag.StringVar(&opts.adminKey, "admin-key", os.Getenv("THEKUA_SEED_ADMIN_KEY"), "admin API key to seed")
	flag.StringVar(&opts.pepper, "api-key-pepper", os.Getenv("THEKUA_API_KEY_PEPPER"), "HMAC pepper for API key hashing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.pepper == "" {
		lg.Fatal("API key pepper is required: set --api-key-pepper or THEKUA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Opening store", zap.String("driver", opts.storage.Storage.Driver))
	store, err := appkg.OpenStore(ctx, &opts.storage)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedProducts(ctx, lg, store.ProductWriter, opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, store.CouponWriter, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKeys(ctx, lg, store.APIKeyWriter, opts); err != nil {
		return errors.Wrap(err, "seed api keys")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, w appkg.ProductWriter, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	for i := range products {
		p := &products[i]
		if err := w.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "price":
				var n jx.Num
				if n, err = d.Num(); err == nil {
					p.Price, err = decimal.NewFromString(n.String())
				}
			case "image":
				err = d.Obj(func(d *jx.Decoder, key string) error {
					var dst *string
					switch key {
					case "thumbnail":
						dst = &p.Image.Thumbnail
					case "mobile":
						dst = &p.Image.Mobile
					case "tablet":
						dst = &p.Image.Tablet
					case "desktop":
						dst = &p.Image.Desktop
					default:
						return d.Skip()
					}
					s, err := d.Str()
					*dst = s
					return err
				})
			default:
				err = d.Skip()
			}
			return err
		})
		out = append(out, p)
		return err
	})
	return out, err
}

// demoCoupons returns coupons covering each eligibility rule, valid for a
// year from now.
func demoCoupons(now time.Time) []coupon.Coupon {
	start := now.Add(-24 * time.Hour)
	end := now.AddDate(1, 0, 0)
	limit := 500
	coupons := []coupon.Coupon{
		{
			Code:           "WELCOME50",
			Description:    "Rs 50 off your first order above Rs 299",
			Type:           coupon.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(50),
			MinOrderAmount: decimal.NewFromInt(299),
			FirstOrderOnly: true,
		},
		{
			Code:              "FESTIVE20",
			Description:       "20% off orders above Rs 500, up to Rs 200",
			Type:              coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(20),
			MinOrderAmount:    decimal.NewFromInt(500),
			MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(200)),
		},
		{
			Code:                 "SWEETS10",
			Description:          "10% off carts with sweets",
			Type:                 coupon.DiscountPercentage,
			DiscountValue:        decimal.NewFromInt(10),
			ApplicableCategories: []string{"sweets"},
		},
		{
			Code:                 "HAMPER100",
			Description:          "Rs 100 off the festive hamper, first 500 orders",
			Type:                 coupon.DiscountFixed,
			DiscountValue:        decimal.NewFromInt(100),
			UsageLimit:           &limit,
			ApplicableProductIDs: []string{"festive-hamper"},
		},
	}
	for i := range coupons {
		coupons[i].StartDate = start
		coupons[i].EndDate = end
		coupons[i].Active = true
	}
	return coupons
}

func seedCoupons(ctx context.Context, lg *zap.Logger, w appkg.CouponWriter, now time.Time) error {
	coupons := demoCoupons(now)
	for i := range coupons {
		c := &coupons[i]
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		c.CreatedAt, c.UpdatedAt = now, now
		if err := w.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}

func seedAPIKeys(ctx context.Context, lg *zap.Logger, w appkg.APIKeyWriter, opts options) error {
	keys := []struct {
		raw  string
		info auth.APIKeyInfo
	}{
		{opts.customerKey, auth.APIKeyInfo{
			ID:         "demo-customer",
			Name:       "Demo customer key",
			CustomerID: opts.customerID,
			Scopes:     []string{auth.ScopeCustomer},
		}},
		{opts.adminKey, auth.APIKeyInfo{
			ID:     "admin",
			Name:   "Admin key",
			Scopes: []string{auth.ScopeAdmin},
		}},
	}
	for _, k := range keys {
		if k.raw == "" {
			lg.Info("Skipping API key without value", zap.String("id", k.info.ID))
			continue
		}
		info := k.info
		info.KeyHash = handler.HashAPIKey([]byte(opts.pepper), k.raw)
		if err := w.Upsert(ctx, &info); err != nil {
			return errors.Wrapf(err, "upsert API key %s", info.ID)
		}
		lg.Info("Upserted API key", zap.String("id", info.ID), zap.Strings("scopes", info.Scopes))
	}
	return nil
}
