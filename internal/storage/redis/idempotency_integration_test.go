//go:build integration

package redis

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/order"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("redis://%s/0", net.JoinHostPort(host, port.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotencyStore(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := NewIdempotencyStore(client, time.Minute, 10*time.Second)

	t.Run("reserve complete replay", func(t *testing.T) {
		id, err := store.Reserve(ctx, "cust-1:k1")
		require.NoError(t, err)
		assert.Empty(t, id)

		_, err = store.Reserve(ctx, "cust-1:k1")
		require.ErrorIs(t, err, order.ErrRequestInFlight)

		require.NoError(t, store.Complete(ctx, "cust-1:k1", "order-1"))
		id, err = store.Reserve(ctx, "cust-1:k1")
		require.NoError(t, err)
		assert.Equal(t, "order-1", id)
	})

	t.Run("release allows retry", func(t *testing.T) {
		_, err := store.Reserve(ctx, "cust-1:k2")
		require.NoError(t, err)
		require.NoError(t, store.Release(ctx, "cust-1:k2"))

		id, err := store.Reserve(ctx, "cust-1:k2")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("keys expire", func(t *testing.T) {
		short := NewIdempotencyStore(client, time.Second, 0)
		require.NoError(t, short.Complete(ctx, "cust-1:k3", "order-3"))

		ttl, err := client.TTL(ctx, keyPrefix+"cust-1:k3").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Second)
		assert.Positive(t, ttl)
	})

	t.Run("reservations expire before completed keys", func(t *testing.T) {
		_, err := store.Reserve(ctx, "cust-1:k4")
		require.NoError(t, err)
		ttl, err := client.TTL(ctx, keyPrefix+"cust-1:k4").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, 10*time.Second)

		require.NoError(t, store.Complete(ctx, "cust-1:k4", "order-4"))
		ttl, err = client.TTL(ctx, keyPrefix+"cust-1:k4").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 10*time.Second)
	})
}
