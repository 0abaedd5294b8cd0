package cache

import (
	"context"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"sort"
	"testing"
	"time"
)

func newTestClient(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestUsersCacheDirtySet(t *testing.T) {
	ctx := context.Background()
	usersCache := NewUsersCache(newTestClient(t))

	require.NoError(t, usersCache.MarkDirty(ctx, "u1", "u2"))
	require.NoError(t, usersCache.MarkDirty(ctx, "u2", "u3"))

	count, err := usersCache.DirtyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	ids, err := usersCache.PopDirty(ctx, 10)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)

	ids, err = usersCache.PopDirty(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProfilesCache(t *testing.T) {
	ctx := context.Background()
	profilesCache := NewProfilesCache(newTestClient(t), time.Minute)

	_, generation, ok := profilesCache.Get(ctx, "u1")
	assert.False(t, ok)
	assert.Equal(t, int64(0), generation)

	profilesCache.Set(ctx, "u1", generation, []byte(`{"user":{"id":"u1"}}`))
	value, _, ok := profilesCache.Get(ctx, "u1")
	assert.True(t, ok)
	assert.JSONEq(t, `{"user":{"id":"u1"}}`, string(value))

	profilesCache.Invalidate(ctx, "u1", "u2")
	_, fresh, ok := profilesCache.Get(ctx, "u1")
	assert.False(t, ok)
	assert.Greater(t, fresh, generation)

	// A profile built before the invalidation is never served
	profilesCache.Set(ctx, "u1", generation, []byte(`{"user":{"id":"stale"}}`))
	_, _, ok = profilesCache.Get(ctx, "u1")
	assert.False(t, ok)
}
