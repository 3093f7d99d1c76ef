package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

type backend interface {
	FetchBoard(ctx context.Context, projectID string) (domain.Board, error)
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FindColumn(ctx context.Context, id string) (domain.Column, error)
	FindItem(ctx context.Context, id string) (domain.Item, error)
	FindTask(ctx context.Context, id string) (domain.Task, error)
	Apply(ctx context.Context, projectID string, cs domain.Changeset) error
}

// Cache wraps a storage backend with Redis-backed caching of project reads.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	var b domain.Board
	if c.load(ctx, boardCacheKey(projectID), &b) {
		return b, nil
	}
	b, err := c.base.FetchBoard(ctx, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	c.store(ctx, boardCacheKey(projectID), b)
	return b, nil
}

func (c *Cache) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(projectID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(projectID), tasks)
	return tasks, nil
}

func (c *Cache) FindColumn(ctx context.Context, id string) (domain.Column, error) {
	return c.base.FindColumn(ctx, id)
}

func (c *Cache) FindItem(ctx context.Context, id string) (domain.Item, error) {
	return c.base.FindItem(ctx, id)
}

func (c *Cache) FindTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.FindTask(ctx, id)
}

// Apply writes through to the backend and evicts the project's cached reads.
func (c *Cache) Apply(ctx context.Context, projectID string, cs domain.Changeset) error {
	// Evict before and after so a concurrent reader cannot repopulate stale data in between.
	c.evict(ctx, projectID)
	if err := c.base.Apply(ctx, projectID, cs); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(projectID), tasksCacheKey(projectID)).Result()
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}

func tasksCacheKey(projectID string) string {
	return "tasks:" + projectID
}
