package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fhiraudit/internal/fhir"
)

const redisKeyPrefix = "fhiraudit:anchor:"

// RedisCache shares resolved anchors between server replicas.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(kind Kind) string {
	return redisKeyPrefix + string(kind)
}

func (c *RedisCache) Get(ctx context.Context, kind Kind) (fhir.Reference, bool, error) {
	val, err := c.client.Get(ctx, redisKey(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return fhir.Reference{}, false, nil
	}
	if err != nil {
		return fhir.Reference{}, false, fmt.Errorf("redis get %s anchor: %w", kind, err)
	}
	return fhir.Reference{Reference: val}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, kind Kind, ref fhir.Reference) error {
	if c.ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, redisKey(kind), ref.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s anchor: %w", kind, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, redisKey(KindDevice), redisKey(KindWorkflow)).Err(); err != nil {
		return fmt.Errorf("redis invalidate anchors: %w", err)
	}
	return nil
}
