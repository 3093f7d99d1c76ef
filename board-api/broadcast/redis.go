package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

// RedisPublisher publishes every event on the Redis channel named after the project room.
type RedisPublisher struct {
	rc *redis.Client
}

func NewRedisPublisher(rc *redis.Client) *RedisPublisher {
	return &RedisPublisher{rc: rc}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, domain.Room(ev.ProjectID), payload).Err()
}
