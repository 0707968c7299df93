package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the complete application configuration, loadable from
// environment variables (THEKUA_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	RequestTimeout time.Duration `default:"8s" usage:"Deadline for a single request's handler" flag:"request-timeout"`
	Storage        StorageConfig
	DatabaseURL    string `usage:"PostgreSQL connection URL (THEKUA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Mongo          MongoConfig
	Redis          RedisConfig
	ImageBaseURL   string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper   string `usage:"HMAC pepper for API key hashing (THEKUA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Checkout       CheckoutConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `default:"postgres" usage:"Storage backend: postgres or mongo" flag:"storage-driver"`
}

// MongoConfig configures the document backend. Transactions need a replica
// set.
type MongoConfig struct {
	URI      string `usage:"MongoDB connection URI (THEKUA_MONGO_URI or MONGODB_URI)" flag:"mongo-uri"`
	Database string `default:"thekua" usage:"MongoDB database name" flag:"mongo-database"`
}

// RedisConfig configures the checkout idempotency store. An empty URL
// disables Idempotency-Key handling.
type RedisConfig struct {
	URL    string        `usage:"Redis URL (THEKUA_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	KeyTTL time.Duration `default:"24h" usage:"How long a completed Idempotency-Key replays its order" flag:"idempotency-ttl"`
}

// pendingTTL bounds an Idempotency-Key reservation to the request deadline
// plus a margin for releasing it.
func (c *Config) pendingTTL() time.Duration {
	if c.RequestTimeout <= 0 {
		return 0
	}
	return c.RequestTimeout + 30*time.Second
}

// CheckoutConfig holds order pricing settings. Amounts are decimal strings.
type CheckoutConfig struct {
	ShippingCharge        string `default:"50" usage:"Flat shipping fee per order" flag:"shipping-charge"`
	FreeShippingThreshold string `default:"0" usage:"Subtotal at which shipping is free; 0 disables" flag:"free-shipping-threshold"`
}

// Pricing parses the checkout amounts.
func (c CheckoutConfig) Pricing() (order.Config, error) {
	charge, err := decimal.NewFromString(c.ShippingCharge)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse shipping charge")
	}
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse free shipping threshold")
	}
	if charge.IsNegative() || threshold.IsNegative() {
		return order.Config{}, errors.New("checkout amounts must not be negative")
	}
	return order.Config{ShippingCharge: charge, FreeShippingThreshold: threshold}, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads an optional .env file, then configuration from
// environment variables and YAML config files, and applies platform-specific
// defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "THEKUA",
		Files:     []string{"config.yaml", "/etc/thekua/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set THEKUA_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo URI is required: set THEKUA_MONGO_URI or MONGODB_URI")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set THEKUA_API_KEY_PEPPER")
	}
	if _, err := c.Checkout.Pricing(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's THEKUA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	for _, d := range []struct {
		dst *string
		env string
	}{
		{&c.DatabaseURL, "DATABASE_URL"},
		{&c.Mongo.URI, "MONGODB_URI"},
		{&c.Redis.URL, "REDIS_URL"},
	} {
		if *d.dst == "" {
			*d.dst = os.Getenv(d.env)
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
