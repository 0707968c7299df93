package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appkg "github.com/harsh2243/Desimithaas-sub001/internal/app"
	"github.com/harsh2243/Desimithaas-sub001/internal/couponimport"
	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
)

func main() {
	_ = godotenv.Load()

	var (
		cfg     appkg.Config
		pattern string
		opts    couponimport.Options
	)
	flag.StringVar(&cfg.Storage.Driver, "storage-driver", appkg.DriverPostgres, "storage backend: postgres or mongo")
	flag.StringVar(&cfg.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.Mongo.URI, "mongo-uri", os.Getenv("MONGODB_URI"), "MongoDB URI (or MONGODB_URI env)")
	flag.StringVar(&cfg.Mongo.Database, "mongo-database", "thekua", "MongoDB database name")
	flag.StringVar(&pattern, "files", "data/coupons*.jsonl.gz", "glob of gzip JSON-lines coupon files")
	flag.UintVar(&opts.Expected, "expected", couponimport.DefaultExpected, "expected number of distinct codes")
	flag.Float64Var(&opts.FalsePositiveRate, "fp-rate", couponimport.DefaultFalsePositiveRate, "duplicate filter false positive rate")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "validate files without writing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, &cfg, pattern, opts); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, cfg *appkg.Config, pattern string, opts couponimport.Options) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}
	lg.Info("Importing coupons", zap.Strings("files", files), zap.Bool("dry_run", opts.DryRun))

	var w couponimport.Writer = discard{}
	if !opts.DryRun {
		store, err := appkg.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		w = store.CouponWriter
	}

	stats, err := couponimport.Run(ctx, w, files, opts)
	lg.Info("Coupon import finished",
		zap.Int("lines", stats.Lines),
		zap.Int("written", stats.Written),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
	)
	return err
}

type discard struct{}

func (discard) Upsert(context.Context, *coupon.Coupon) error { return nil }
