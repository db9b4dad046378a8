// Package cache provides a Redis cache-aside layer for per-owner task lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biosecret/go-tasks/models"
)

// TaskListCache stores each owner's task list under one key, next to a
// generation counter. Any mutation of the owner's tasks must call
// Invalidate, which bumps the generation; SetTasks only writes when the
// generation still matches the one GetTasks returned.
type TaskListCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

// Stats counts cache outcomes.
type Stats struct {
	Hits          atomic.Uint64
	Misses        atomic.Uint64
	Invalidations atomic.Uint64
	StaleWrites   atomic.Uint64
	Errors        atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
	StaleWrites   uint64 `json:"stale_writes"`
	Errors        uint64 `json:"errors"`
}

// Connect parses a redis:// URL, pings the server and returns a cache.
func Connect(ctx context.Context, redisURL string, ttl time.Duration) (*TaskListCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}
	return New(client, "tasks:", ttl), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, ttl time.Duration) *TaskListCache {
	return &TaskListCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *TaskListCache) key(ownerID string) string {
	return c.prefix + ownerID
}

func (c *TaskListCache) generationKey(ownerID string) string {
	return c.prefix + "gen:" + ownerID
}

// GetTasks returns the cached list, whether it was a hit, and the owner's
// current generation. The generation is meaningful on a miss too: pass it
// to SetTasks after loading the list from the store.
func (c *TaskListCache) GetTasks(ctx context.Context, ownerID string) ([]models.Task, uint64, bool, error) {
	values, err := c.client.MGet(ctx, c.key(ownerID), c.generationKey(ownerID)).Result()
	if err != nil {
		c.stats.Errors.Add(1)
		return nil, 0, false, fmt.Errorf("cache get error: %w", err)
	}

	generation, err := parseGeneration(values[1])
	if err != nil {
		c.stats.Errors.Add(1)
		return nil, 0, false, err
	}

	data, ok := values[0].(string)
	if !ok {
		c.stats.Misses.Add(1)
		return nil, generation, false, nil
	}

	var tasks []models.Task
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		c.stats.Errors.Add(1)
		return nil, 0, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	c.stats.Hits.Add(1)
	return tasks, generation, true, nil
}

func parseGeneration(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	generation, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache generation %q: %w", s, err)
	}
	return generation, nil
}

// SetTasks stores the list if no Invalidate happened since generation was
// read. A skipped write is not an error.
func (c *TaskListCache) SetTasks(ctx context.Context, ownerID string, generation uint64, tasks []models.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache marshal error: %w", err)
	}

	genKey := c.generationKey(ownerID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(ownerID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.stats.StaleWrites.Add(1)
		return nil
	default:
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache set error: %w", err)
	}
}

var errStale = errors.New("cache generation changed")

// Invalidate drops the list and bumps the generation in one transaction.
func (c *TaskListCache) Invalidate(ctx context.Context, ownerID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(ownerID))
		pipe.Del(ctx, c.key(ownerID))
		return nil
	})
	if err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache delete error: %w", err)
	}
	c.stats.Invalidations.Add(1)
	return nil
}

func (c *TaskListCache) Stats() StatsSnapshot {
	return StatsSnapshot{
		Hits:          c.stats.Hits.Load(),
		Misses:        c.stats.Misses.Load(),
		Invalidations: c.stats.Invalidations.Load(),
		StaleWrites:   c.stats.StaleWrites.Load(),
		Errors:        c.stats.Errors.Load(),
	}
}

func (c *TaskListCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *TaskListCache) Close() error {
	return c.client.Close()
}
