//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer backs the redis ledger store in integration tests. URL is a
// redis:// connection string accepted by redis.ParseURL.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine", tcredis.WithSnapshotting(10, 1))
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		fail("redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		fail("parse redis URL %q: %v", url, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		fail("ping redis: %v", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client}
}

// FlushAll drops every key so suites sharing the container start empty.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
