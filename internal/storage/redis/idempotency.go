// Package redis stores checkout idempotency keys in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

const (
	// DefaultKeyTTL is how long a completed key replays its order.
	DefaultKeyTTL = 24 * time.Hour
	// DefaultPendingTTL bounds how long a reservation outlives a request that
	// never completed or released it.
	DefaultPendingTTL = time.Minute

	keyPrefix = "thekua:idempotency:"
	pending   = "\x00pending"
)

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore implements order.IdempotencyStore. A key holds a pending
// marker while its request runs and the order id once it completed.
type IdempotencyStore struct {
	client     redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyStore returns a store whose completed keys expire after ttl
// and whose reservations expire after pendingTTL. Non-positive durations
// select DefaultKeyTTL and DefaultPendingTTL.
func NewIdempotencyStore(client redis.Cmdable, ttl, pendingTTL time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl, pendingTTL: min(pendingTTL, ttl)}
}

// Reserve claims key with SETNX. When the key exists it returns the recorded
// order id, or order.ErrRequestInFlight while the holder is still running.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (string, error) {
	k := keyPrefix + key
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pending, s.pendingTTL).Result()
		if err != nil {
			return "", fmt.Errorf("reserving idempotency key: %w", err)
		}
		if ok {
			return "", nil
		}

		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired or released between SETNX and GET.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading idempotency key: %w", err)
		}
		if v == pending {
			return "", order.ErrRequestInFlight
		}
		return v, nil
	}
	return "", order.ErrRequestInFlight
}

// Complete records orderID for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	if err := s.client.Set(ctx, keyPrefix+key, orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("completing idempotency key: %w", err)
	}
	return nil
}

// Release drops the reservation so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}
