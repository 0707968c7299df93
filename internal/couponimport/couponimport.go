// Package couponimport loads coupon definitions from gzip-compressed JSON
// lines files. Files are decoded in parallel; a single writer validates each
// coupon and stores it, keeping the first occurrence of every code.
package couponimport

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/coupon"
)

const (
	// DefaultExpected sizes the duplicate filter.
	DefaultExpected = 1_000_000
	// DefaultFalsePositiveRate is the chance a new code is mistaken for a
	// duplicate and skipped.
	DefaultFalsePositiveRate = 1e-6

	progressEvery = 100_000
	maxLineBytes  = 64 << 10
)

// Writer stores one coupon, creating or redefining it.
type Writer interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// Options tunes an import.
type Options struct {
	// Expected is the number of distinct codes the filter is sized for.
	Expected uint
	// FalsePositiveRate of the duplicate filter.
	FalsePositiveRate float64
	// DryRun validates without writing.
	DryRun bool
}

// Stats summarizes an import.
type Stats struct {
	Lines      int
	Written    int
	Duplicates int
	Invalid    int
}

type record struct {
	file string
	line int
	c    *coupon.Coupon
	err  error
}

// Run imports every file into w.
func Run(ctx context.Context, w Writer, files []string, opts Options) (Stats, error) {
	if opts.Expected == 0 {
		opts.Expected = DefaultExpected
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = DefaultFalsePositiveRate
	}

	records := make(chan record, 1024)
	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	for _, f := range files {
		readers.Go(func() error {
			return readFile(rctx, f, records)
		})
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})

	var stats Stats
	g.Go(func() error {
		var err error
		stats, err = consume(gctx, w, records, opts)
		return err
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func consume(ctx context.Context, w Writer, records <-chan record, opts Options) (Stats, error) {
	lg := zctx.From(ctx)
	seen := bloom.NewWithEstimates(opts.Expected, opts.FalsePositiveRate)

	var stats Stats
	for rec := range records {
		stats.Lines++
		if stats.Lines%progressEvery == 0 {
			lg.Info("Import progress",
				zap.Int("lines", stats.Lines),
				zap.Int("written", stats.Written),
			)
		}

		if rec.err == nil {
			rec.c.Code = coupon.NormalizeCode(rec.c.Code)
			rec.err = rec.c.Validate()
		}
		if rec.err != nil {
			stats.Invalid++
			lg.Warn("Invalid coupon line",
				zap.String("file", rec.file),
				zap.Int("line", rec.line),
				zap.Error(rec.err),
			)
			continue
		}

		if seen.TestAndAddString(rec.c.Code) {
			stats.Duplicates++
			lg.Debug("Duplicate coupon code",
				zap.String("code", rec.c.Code),
				zap.String("file", rec.file),
				zap.Int("line", rec.line),
			)
			continue
		}
		if opts.DryRun {
			stats.Written++
			continue
		}
		if err := w.Upsert(ctx, rec.c); err != nil {
			return stats, errors.Wrapf(err, "upsert coupon %s (%s:%d)", rec.c.Code, rec.file, rec.line)
		}
		stats.Written++
	}
	return stats, ctx.Err()
}

func readFile(ctx context.Context, path string, out chan<- record) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scanLines(ctx, path, gz, out)
}

// scanLines decodes each non-empty line of r and sends it to out.
func scanLines(ctx context.Context, name string, r io.Reader, out chan<- record) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var n int
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c, err := DecodeLine(line)
		select {
		case out <- record{file: name, line: n, c: c, err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", name)
	}
	return nil
}

// DecodeLine parses one coupon object. Coupons are active unless the line
// says otherwise.
func DecodeLine(line []byte) (*coupon.Coupon, error) {
	c := &coupon.Coupon{Active: true}
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		case "type", "discountType":
			var s string
			s, err = d.Str()
			c.Type = coupon.DiscountType(s)
		case "discountValue":
			c.DiscountValue, err = decimalValue(d)
		case "minOrderAmount":
			c.MinOrderAmount, err = decimalValue(d)
		case "maxDiscountAmount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			v, err = decimalValue(d)
			c.MaxDiscountAmount = decimal.NewNullDecimal(v)
		case "usageLimit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v int
			v, err = d.Int()
			c.UsageLimit = &v
		case "startDate":
			c.StartDate, err = timeValue(d)
		case "endDate":
			c.EndDate, err = timeValue(d)
		case "applicableCategories":
			c.ApplicableCategories, err = stringsValue(d)
		case "applicableProducts", "applicableProductIds":
			c.ApplicableProductIDs, err = stringsValue(d)
		case "isFirstOrderOnly":
			c.FirstOrderOnly, err = d.Bool()
		case "isActive":
			c.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func decimalValue(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func timeValue(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func stringsValue(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}
