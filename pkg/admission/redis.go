package admission

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisKeyTTL bounds how long a reservation can outlive a crashed process.
const redisKeyTTL = 30 * time.Minute

const redisKeyPrefix = "flowmill:admission:"

// RedisRegistry is a Registry backed by Redis SET NX, shared across instances.
type RedisRegistry struct {
	client redis.UniversalClient
}

func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Reserve(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, redisKeyPrefix+key, "1", redisKeyTTL).Result()
}

func (r *RedisRegistry) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKeyPrefix+key).Err()
}
