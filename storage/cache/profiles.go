package cache

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"time"
)

// ProfilesCache stores rendered profile read models keyed by user id and
// generation. Invalidate bumps the generation of a user, so a profile built
// before the bump and stored after it lands under a key nobody reads.
// Orphaned entries expire on their own.
type ProfilesCache struct {
	redisClient *redis.Client
	expiration  time.Duration
}

func NewProfilesCache(redisConnection *redis.Client, expiration time.Duration) *ProfilesCache {
	return &ProfilesCache{
		redisClient: redisConnection,
		expiration:  expiration,
	}
}

// Get returns the cached profile of userID, if any, and the generation a
// freshly built profile has to be stored under. A negative generation means
// the cache is unavailable.
func (c *ProfilesCache) Get(ctx context.Context, userID string) ([]byte, int64, bool) {
	generation, err := c.redisClient.Get(ctx, c.getGenerationKey(userID)).Int64()
	if err != nil && err != redis.Nil {
		log.Errorf("Error reading profile generation %s: %v", userID, err)
		return nil, -1, false
	}

	value, err := c.redisClient.Get(ctx, c.getRedisKey(userID, generation)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Errorf("Error reading cached profile %s: %v", userID, err)
		}
		return nil, generation, false
	}
	return value, generation, true
}

func (c *ProfilesCache) Set(ctx context.Context, userID string, generation int64, value []byte) {
	if generation < 0 {
		return
	}
	if err := c.redisClient.Set(ctx, c.getRedisKey(userID, generation), value, c.expiration).Err(); err != nil {
		log.Errorf("Error caching profile %s: %v", userID, err)
	}
}

func (c *ProfilesCache) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	_, err := c.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, c.getGenerationKey(id))
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error invalidating profiles %v: %v", userIDs, err)
	}
}

func (c *ProfilesCache) getRedisKey(userID string, generation int64) string {
	return fmt.Sprintf("profile__%s__%d", userID, generation)
}

func (c *ProfilesCache) getGenerationKey(userID string) string {
	return fmt.Sprintf("profile_generation__%s", userID)
}
