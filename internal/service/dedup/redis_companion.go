package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCompanion mirrors accepted ids into Redis via SETNX so a process
// restart can rehydrate recently-seen ids without reprocessing, per the
// durable-dedup recommendation. It is advisory: a miss here only means an
// item is re-scored once, never that a duplicate silently reaches the
// Aggregator twice within one process's Index.
type RedisCompanion struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCompanion wraps an existing Redis client.
func NewRedisCompanion(client *redis.Client, prefix string, horizon time.Duration) *RedisCompanion {
	if prefix == "" {
		prefix = "oracle:dedup"
	}
	return &RedisCompanion{client: client, prefix: prefix, ttl: horizon}
}

// MarkIfNew returns true if id was newly recorded (SETNX succeeded), false
// if it was already present in Redis.
func (c *RedisCompanion) MarkIfNew(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("%s:%s", c.prefix, id)
	ok, err := c.client.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Rehydrate loads ids matching the dedup keyspace into an in-memory Index
// at startup, best-effort.
func (c *RedisCompanion) Rehydrate(ctx context.Context, idx *Index) (int, error) {
	var cursor uint64
	now := time.Now()
	count := 0
	pattern := c.prefix + ":*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return count, fmt.Errorf("dedup scan: %w", err)
		}
		for _, k := range keys {
			id := k[len(c.prefix)+1:]
			idx.SeenOrMark(id, now)
			count++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
