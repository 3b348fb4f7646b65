package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lafamilia/og-scanner/pkg/storage"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration test skipped in -short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7.0-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(context.Background()) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	})
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRepository(t *testing.T) {
	rdb := setupRedis(t)
	repo := NewRepository(rdb, "")
	defer repo.Close()
	ctx := context.Background()

	first := time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local)

	t.Run("first sighting is inserted", func(t *testing.T) {
		stored, inserted, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "A100", ScannedAt: first})
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.True(t, stored.ScannedAt.Equal(first))

		val, err := rdb.Get(ctx, "scan:A100").Result()
		require.NoError(t, err)
		assert.Equal(t, "2026-10-18 10:00:00", val)
	})

	t.Run("second sighting keeps first time", func(t *testing.T) {
		stored, inserted, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "A100", ScannedAt: first.Add(5 * time.Minute)})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.True(t, stored.ScannedAt.Equal(first))
	})

	t.Run("missing barcode", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		_, _, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "B200", ScannedAt: first.Add(time.Hour)})
		require.NoError(t, err)

		recs, err := repo.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "B200", recs[0].Barcode)
		assert.Equal(t, "A100", recs[1].Barcode)

		recs, err = repo.List(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})
}

func TestNewRepository_DefaultPrefix(t *testing.T) {
	repo := NewRepository(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer repo.Close()
	assert.Equal(t, "scan:X1", repo.key("X1"))

	custom := NewRepository(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "station7:")
	defer custom.Close()
	assert.Equal(t, "station7:X1", custom.key("X1"))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "scan:", escapeGlob("scan:"))
	assert.Equal(t, `st\*\?\[7\]\\:`, escapeGlob(`st*?[7]\:`))
}

func TestRepository_ListIgnoresKeysOutsidePrefix(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	repo := NewRepository(rdb, "st*:")
	defer repo.Close()

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local)
	_, _, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "A100", ScannedAt: at})
	require.NoError(t, err)

	// Would match an unescaped "st*:*" pattern.
	require.NoError(t, rdb.Set(ctx, "station:config", "not a timestamp", 0).Err())
	// Garbage under the prefix is skipped, not fatal.
	require.NoError(t, rdb.Set(ctx, "st*:BROKEN", "not a timestamp", 0).Err())

	recs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A100", recs[0].Barcode)
}
