package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests per Window. Zero or negative disables limiting.
	Max    int
	Window time.Duration
	// KeyFunc selects the bucket for a request. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows; the
// effective count weights the previous one by its overlap with the sliding
// window.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type rateLimiter struct {
	max  int
	size time.Duration
	key  func(*http.Request) string
	now  func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &rateLimiter{
		max:     cfg.Max,
		size:    cfg.Window,
		key:     key,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// allow records a request for key at now. It reports the remaining budget,
// when the current window ends and whether the request may proceed.
func (rl *rateLimiter) allow(key string, now time.Time) (int, time.Time, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	start := now.Truncate(rl.size)
	w, ok := rl.windows[key]
	switch {
	case !ok:
		w = &window{currStart: start}
		rl.windows[key] = w
	case start.Sub(w.currStart) >= 2*rl.size:
		*w = window{currStart: start}
	case start.After(w.currStart):
		*w = window{prev: w.curr, currStart: start}
	}

	overlap := 1 - float64(now.Sub(w.currStart))/float64(rl.size)
	used := w.prev*max(overlap, 0) + w.curr
	resetAt := w.currStart.Add(rl.size)
	if used >= float64(rl.max) {
		return 0, resetAt, false
	}

	w.curr++
	remaining := max(int(float64(rl.max)-used-1), 0)
	return remaining, resetAt, true
}

// evict drops windows that can no longer influence a decision.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if now.Sub(w.currStart) >= 2*rl.size {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get
// 429 with Retry-After. Every response carries the X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine, stopped by ctx, that
// evicts idle keys.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	if cfg.Max > 0 && cfg.Window > 0 {
		go rl.evictLoop(ctx)
	}
	return rl.middleware()
}

func (rl *rateLimiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if rl.max <= 0 || rl.size <= 0 {
			return next
		}
		limit := strconv.Itoa(rl.max)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := rl.now()
			remaining, resetAt, ok := rl.allow(rl.key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				wait := max(resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, X-Real-IP or the
// remote address, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderOrIP keys authenticated callers by a digest of header so one API key
// shares a budget across addresses. Requests without the header fall back to
// ClientIP.
func HeaderOrIP(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		v := r.Header.Get(header)
		if v == "" {
			return "ip:" + ClientIP(r)
		}
		sum := sha256.Sum256([]byte(v))
		return "key:" + hex.EncodeToString(sum[:8])
	}
}
