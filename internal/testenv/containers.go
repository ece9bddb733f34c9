// Package testenv starts throwaway MongoDB and Redis containers for integration tests.
package testenv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/redisclient"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// skipIfUnavailable skips container tests in -short mode or when explicitly disabled
func skipIfUnavailable(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if os.Getenv("SKIP_CONTAINER_TESTS") != "" {
		t.Skip("SKIP_CONTAINER_TESTS set")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// MongoDB starts a MongoDB container and returns a fresh database on it.
// The container is terminated when the test ends.
func MongoDB(t *testing.T, database string) *mongo.Database {
	t.Helper()
	skipIfUnavailable(t)

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7.0")
	if err != nil {
		t.Skipf("MongoDB container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "failed to get MongoDB connection string")

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "failed to connect to MongoDB")
	require.NoError(t, client.Ping(connectCtx, nil), "failed to ping MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database(database)
}

// Redis starts a Redis container and returns a traced client for it
func Redis(t *testing.T) *redisclient.Client {
	t.Helper()
	skipIfUnavailable(t)

	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(goredis.NewClient(opts))
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping Redis")
	t.Cleanup(func() { _ = client.Close() })

	return client
}
