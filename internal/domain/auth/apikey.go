package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	ScopeCustomer = "customer"
	ScopeAdmin    = "admin"
)

// ErrNotFound is returned by repositories when no key matches the hash.
var ErrNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID         string
	KeyHash    string
	Name       string
	CustomerID string
	Scopes     []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// IsAdmin reports whether the key carries the admin scope.
func (k *APIKeyInfo) IsAdmin() bool {
	return k.HasScope(ScopeAdmin)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying the authenticated key.
func WithIdentity(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the authenticated key stored in ctx, if any.
func FromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(ctxKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}
