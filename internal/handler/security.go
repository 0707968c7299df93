package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, the form in
// which keys are stored.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Security authenticates requests by API key.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity returns a Security that looks keys up in apikeys.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Require rejects requests without a valid API key (401) or without scope
// (403). The admin scope satisfies any scope. On success the key identity is
// stored in the request context.
func (s *Security) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := s.authenticate(r)
			if err != nil {
				if errors.Is(err, errUnauthorized) {
					writeErrorBody(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				zctx.From(r.Context()).Error("API key lookup", zap.Error(err))
				writeErrorBody(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !info.HasScope(scope) && !info.IsAdmin() {
				writeErrorBody(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := auth.WithIdentity(r.Context(), info)
			ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errUnauthorized = errors.New("unauthorized")

func (s *Security) authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, errUnauthorized
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, errUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored hash must match byte for byte.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}
