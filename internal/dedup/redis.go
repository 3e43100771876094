package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding sent hashes.
const DefaultRedisKey = "painpoint:dedup:sent"

// RedisStore keeps the ledger in a Redis set.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed ledger.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Check pings Redis.
func (r *RedisStore) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrLedgerUnusable, err)
	}
	return nil
}

// Load returns all members of the ledger set.
func (r *RedisStore) Load(ctx context.Context) ([]string, error) {
	hashes, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load ledger set: %w", err)
	}
	return hashes, nil
}

// Commit adds hashes to the ledger set.
func (r *RedisStore) Commit(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	members := make([]any, len(hashes))
	for i, h := range hashes {
		members[i] = h
	}
	if err := r.client.SAdd(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("add to ledger set: %w", err)
	}
	return nil
}
