package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		Storage:      StorageConfig{Driver: DriverPostgres},
		DatabaseURL:  "postgres://localhost/thekua",
		APIKeyPepper: "pepper",
		Checkout:     CheckoutConfig{ShippingCharge: "50", FreeShippingThreshold: "0"},
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("MONGODB_URI", "mongodb://platform:27017")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9090")

	t.Run("fills empty values", func(t *testing.T) {
		cfg := Config{Addr: "0.0.0.0:8080"}
		cfg.applyPlatformDefaults()
		assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
		assert.Equal(t, "mongodb://platform:27017", cfg.Mongo.URI)
		assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
		assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg := Config{
			Addr:        "127.0.0.1:7000",
			DatabaseURL: "postgres://explicit/db",
			Redis:       RedisConfig{URL: "redis://explicit:6379"},
		}
		cfg.applyPlatformDefaults()
		assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
		assert.Equal(t, "redis://explicit:6379", cfg.Redis.URL)
		assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"postgres", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, "database URL is required"},
		{"mongo", func(c *Config) {
			c.Storage.Driver = DriverMongo
			c.Mongo.URI = "mongodb://localhost:27017"
		}, ""},
		{"mongo without uri", func(c *Config) { c.Storage.Driver = DriverMongo }, "mongo URI is required"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, `unknown storage driver "sqlite"`},
		{"missing pepper", func(c *Config) { c.APIKeyPepper = "" }, "pepper is required"},
		{"bad shipping charge", func(c *Config) { c.Checkout.ShippingCharge = "fifty" }, "parse shipping charge"},
		{"negative threshold", func(c *Config) { c.Checkout.FreeShippingThreshold = "-1" }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckoutPricing(t *testing.T) {
	got, err := CheckoutConfig{ShippingCharge: "49.5", FreeShippingThreshold: "999"}.Pricing()
	require.NoError(t, err)
	assert.True(t, got.ShippingCharge.Equal(decimal.RequireFromString("49.5")))
	assert.True(t, got.FreeShippingThreshold.Equal(decimal.NewFromInt(999)))
}

func TestPendingTTLFollowsRequestTimeout(t *testing.T) {
	cfg := Config{RequestTimeout: 8 * time.Second}
	assert.Equal(t, 38*time.Second, cfg.pendingTTL())

	cfg.RequestTimeout = 0
	assert.Zero(t, cfg.pendingTTL())
}
