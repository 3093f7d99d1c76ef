package board

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIntents records applied intent ids in Redis so every API instance
// rejects a replayed mutation.
type RedisIntents struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIntents creates an intent recorder whose keys expire after ttl.
func NewRedisIntents(client *redis.Client, ttl time.Duration) *RedisIntents {
	return &RedisIntents{client: client, ttl: ttl}
}

func (r *RedisIntents) key(projectID, intentID string) string {
	return "intent:" + projectID + ":" + intentID
}

// Add returns true when the intent id was not seen before.
func (r *RedisIntents) Add(ctx context.Context, projectID, intentID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(projectID, intentID), 1, r.ttl).Result()
}

// Remove forgets an intent id so a failed mutation may be retried.
func (r *RedisIntents) Remove(ctx context.Context, projectID, intentID string) error {
	return r.client.Del(ctx, r.key(projectID, intentID)).Err()
}
