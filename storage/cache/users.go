package cache

import (
	"context"
	"github.com/redis/go-redis/v9"
)

const UsersDirtyCountersRedisKey = "users_dirty_counters"

// UsersCache tracks users whose follow counters changed since the last
// reconciliation sweep.
type UsersCache struct {
	redisClient *redis.Client
}

func NewUsersCache(redisConnection *redis.Client) *UsersCache {
	return &UsersCache{redisClient: redisConnection}
}

func (c *UsersCache) MarkDirty(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	return c.redisClient.SAdd(ctx, UsersDirtyCountersRedisKey, members...).Err()
}

// PopDirty removes and returns up to count dirty users.
func (c *UsersCache) PopDirty(ctx context.Context, count int) ([]string, error) {
	ids, err := c.redisClient.SPopN(ctx, UsersDirtyCountersRedisKey, int64(count)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return ids, err
}

func (c *UsersCache) DirtyCount(ctx context.Context) (int64, error) {
	return c.redisClient.SCard(ctx, UsersDirtyCountersRedisKey).Result()
}
