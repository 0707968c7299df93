package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/product"
	"github.com/harsh2243/Desimithaas-sub001/internal/handler"
	"github.com/harsh2243/Desimithaas-sub001/internal/storage/mongo"
	"github.com/harsh2243/Desimithaas-sub001/internal/storage/postgres"
	"github.com/harsh2243/Desimithaas-sub001/internal/storage/redis"
	"github.com/harsh2243/Desimithaas-sub001/pkg/health"
	"github.com/harsh2243/Desimithaas-sub001/pkg/httpmiddleware"
)

// Store bundles the repositories of one storage backend.
type Store struct {
	Products product.Repository
	Coupons  coupon.Repository
	Orders   order.Repository
	APIKeys  auth.Repository
	Tx       order.TxManager

	// Writers used by seeding and bulk import.
	ProductWriter ProductWriter
	CouponWriter  CouponWriter
	APIKeyWriter  APIKeyWriter

	Ping  func(ctx context.Context) error
	Close func()
}

// ProductWriter inserts or replaces catalog products.
type ProductWriter interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// CouponWriter inserts or redefines coupons, keeping usage counts.
type CouponWriter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// APIKeyWriter inserts or replaces API keys.
type APIKeyWriter interface {
	Upsert(ctx context.Context, info *auth.APIKeyInfo) error
}

// OpenStore connects to the backend selected by cfg.Storage.Driver and
// prepares its schema.
func OpenStore(ctx context.Context, cfg *Config) (*Store, error) {
	switch cfg.Storage.Driver {
	case DriverMongo:
		return openMongo(ctx, cfg.Mongo)
	default:
		return openPostgres(ctx, cfg.DatabaseURL)
	}
}

func openPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	products := postgres.NewProductRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)
	return &Store{
		Products:      products,
		Coupons:       coupons,
		Orders:        postgres.NewOrderRepository(pool),
		APIKeys:       apikeys,
		Tx:            postgres.NewTxManager(pool),
		ProductWriter: products,
		CouponWriter:  coupons,
		APIKeyWriter:  apikeys,
		Ping:          pool.Ping,
		Close:         pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, cfg.URI)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	closeClient := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}

	db := client.Database(cfg.Database)
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		closeClient()
		return nil, errors.Wrap(err, "ensure indexes")
	}
	products := mongo.NewProductRepository(db)
	coupons := mongo.NewCouponRepository(db)
	apikeys := mongo.NewAPIKeyRepository(db)
	return &Store{
		Products:      products,
		Coupons:       coupons,
		Orders:        mongo.NewOrderRepository(db),
		APIKeys:       apikeys,
		Tx:            mongo.NewTxManager(client),
		ProductWriter: products,
		CouponWriter:  coupons,
		APIKeyWriter:  apikeys,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		Close: closeClient,
	}, nil
}

// NewAPI builds the domain services on store and the HTTP handler serving
// them.
func NewAPI(cfg *Config, store *Store, opts ...order.Option) (*handler.Handler, *handler.Security, error) {
	pricing, err := cfg.Checkout.Pricing()
	if err != nil {
		return nil, nil, err
	}

	couponService := coupon.NewService(store.Coupons, store.Orders)
	orderService, err := order.NewService(pricing, store.Products, couponService, store.Orders, store.Tx, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create order service")
	}

	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		store.Products,
		orderService,
		couponService,
	)
	return h, handler.NewSecurity(store.APIKeys, []byte(cfg.APIKeyPepper)), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage.Driver, 5*time.Second, health.Ping(store.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	orderOpts := []order.Option{
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	if cfg.Redis.URL != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.Ping(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		orderOpts = append(orderOpts, order.WithIdempotencyStore(redis.NewIdempotencyStore(rdb, cfg.Redis.KeyTTL, cfg.pendingTTL())))
	} else {
		lg.Warn("Redis not configured, Idempotency-Key headers are ignored")
	}

	h, security, err := NewAPI(cfg, store, orderOpts...)
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(h.Routes(security, healthSvc),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, handler.IdempotencyKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderOrIP(handler.APIKeyHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Timeout(cfg.RequestTimeout),
			httpmiddleware.Instrument("thekua-api", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
