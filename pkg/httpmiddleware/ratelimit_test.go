package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	t.Run("under limit", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())
		for i := range 5 {
			w := serve(h, "192.168.1.1:12345")
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
			assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
			assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
		}
	})

	t.Run("over limit", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())
		for range 2 {
			require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:9999").Code)
		}

		w := serve(h, "10.0.0.1:9999")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var (
			code    int
			message string
		)
		require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				code, err = d.Int()
			case "message":
				message, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}))
		assert.Equal(t, http.StatusTooManyRequests, code)
		assert.Equal(t, "rate limit exceeded", message)
	})

	t.Run("independent clients", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:5678").Code)
	})

	t.Run("forwarded for", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		xff := "203.0.113.50, 70.41.3.18"
		assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:4444", "X-Forwarded-For", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "192.168.1.2:5555", "X-Forwarded-For", xff).Code)
	})

	t.Run("api key shares budget across addresses", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{
			Max:     1,
			Window:  time.Minute,
			KeyFunc: HeaderOrIP("api_key"),
		})(okHandler())
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", "api_key", "key-a").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.2:1", "api_key", "key-a").Code)
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1", "api_key", "key-b").Code)
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1").Code)
	})

	t.Run("disabled", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{})(okHandler())
		for range 10 {
			w := serve(h, "10.0.0.1:1")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		}
	})
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := rl.allow("k", base)
		require.True(t, ok)
	}
	_, resetAt, ok := rl.allow("k", base.Add(30*time.Second))
	assert.False(t, ok)
	assert.Equal(t, base.Add(time.Minute), resetAt)

	// A quarter into the next window the previous four still weigh three.
	remaining, _, ok := rl.allow("k", base.Add(75*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	_, _, ok = rl.allow("k", base.Add(75*time.Second))
	assert.False(t, ok)

	// Two idle windows forget everything.
	remaining, _, ok = rl.allow("k", base.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	rl.evict(base.Add(10 * time.Minute))
	assert.Empty(t, rl.windows)
}
