package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Wait for TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))

	err := rc.Delete(ctx, "del:key")
	require.NoError(t, err)

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- Analysis read-through ---

func TestSetVersioned_RejectsOlderVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.AnalysisLatestKey(uuid.New())

	stored, err := rc.SetVersioned(ctx, key, 2, []byte(`{"version":2}`), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	// A reader that loaded version 1 before the worker wrote version 2.
	stored, err = rc.SetVersioned(ctx, key, 1, []byte(`{"version":1}`), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = rc.SetVersioned(ctx, key, 2, []byte(`{"version":2,"dup":true}`), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored, "equal version is not newer")

	val, found, err := rc.GetVersioned(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"version":2}`, string(val))

	stored, err = rc.SetVersioned(ctx, key, 3, []byte(`{"version":3}`), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	val, _, err = rc.GetVersioned(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":3}`, string(val))
}

func TestSetVersioned_ExpiresAndDeletes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.AnalysisLatestKey(uuid.New())

	_, err := rc.SetVersioned(ctx, key, 5, []byte(`{}`), time.Second)
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)

	_, found, err := rc.GetVersioned(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	// After expiry any version may be cached again.
	stored, err := rc.SetVersioned(ctx, key, 1, []byte(`{}`), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	require.NoError(t, rc.Delete(ctx, key))
	_, found, err = rc.GetVersioned(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetVersioned_Missing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.GetVersioned(context.Background(), "analysis:latest:missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestIncrWithExpiry_DoesNotExtendWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:window:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	time.Sleep(1200 * time.Millisecond)
	_, err = rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	time.Sleep(1200 * time.Millisecond)

	// The window opened by the first hit has closed despite the second.
	val, err := rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestAnalysisLatestKey(t *testing.T) {
	cardID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	key := cache.AnalysisLatestKey(cardID)
	assert.Equal(t, "analysis:latest:11111111-1111-1111-1111-111111111111", key)
}

func TestJobKey(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := cache.JobKey(jobID)
	assert.Equal(t, "job:22222222-2222-2222-2222-222222222222", key)
}

func TestRateLimitKey(t *testing.T) {
	window := time.Unix(1700000040, 0)
	assert.Equal(t, "ratelimit:cl_abcd1:read:1700000040", cache.RateLimitKey("cl_abcd1", "read", window))
	assert.NotEqual(t,
		cache.RateLimitKey("cl_abcd1", "read", window),
		cache.RateLimitKey("cl_abcd1", "trigger", window))
	assert.NotEqual(t,
		cache.RateLimitKey("cl_abcd1", "read", window),
		cache.RateLimitKey("cl_abcd1", "read", window.Add(time.Minute)))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	id := uuid.New()

	keys := map[string]bool{
		cache.AnalysisLatestKey(id):                         true,
		cache.JobKey(id):                                    true,
		cache.RateLimitKey(id.String(), "read", time.Now()): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
