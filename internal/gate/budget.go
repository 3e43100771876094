package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryBudget is a per-run counter.
type MemoryBudget struct {
	limit     int64
	remaining atomic.Int64
}

// NewMemoryBudget creates a budget with limit admissions.
func NewMemoryBudget(limit int) *MemoryBudget {
	b := &MemoryBudget{limit: int64(limit)}
	b.remaining.Store(int64(limit))
	return b
}

// Take decrements the counter unless it is already zero.
func (b *MemoryBudget) Take(ctx context.Context) (bool, error) {
	for {
		r := b.remaining.Load()
		if r <= 0 {
			return false, nil
		}
		if b.remaining.CompareAndSwap(r, r-1) {
			return true, nil
		}
	}
}

// Remaining returns the admissions left.
func (b *MemoryBudget) Remaining(ctx context.Context) (int, error) {
	return int(b.remaining.Load()), nil
}

// Reset refills the counter.
func (b *MemoryBudget) Reset(ctx context.Context) error {
	b.remaining.Store(b.limit)
	return nil
}

// DefaultBudgetPrefix prefixes the per-day budget keys.
const DefaultBudgetPrefix = "painpoint:budget:"

// RedisBudget is a per-day counter shared by every run on the same day.
type RedisBudget struct {
	client *redis.Client
	prefix string
	limit  int
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisBudget creates a daily budget stored in Redis.
func NewRedisBudget(client *redis.Client, limit int) *RedisBudget {
	return &RedisBudget{
		client: client,
		prefix: DefaultBudgetPrefix,
		limit:  limit,
		ttl:    48 * time.Hour,
		now:    time.Now,
	}
}

func (b *RedisBudget) key() string {
	return b.prefix + b.now().UTC().Format("2006-01-02")
}

// Take seeds today's counter on first use, then decrements it. An overdraw
// is rolled back.
func (b *RedisBudget) Take(ctx context.Context) (bool, error) {
	key := b.key()

	if err := b.client.SetNX(ctx, key, b.limit, b.ttl).Err(); err != nil {
		return false, fmt.Errorf("seed budget: %w", err)
	}

	left, err := b.client.Decr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("decrement budget: %w", err)
	}
	if left < 0 {
		if err := b.client.Incr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("roll back budget: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Remaining returns today's admissions left.
func (b *RedisBudget) Remaining(ctx context.Context) (int, error) {
	v, err := b.client.Get(ctx, b.key()).Result()
	if errors.Is(err, redis.Nil) {
		return b.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read budget: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse budget %q: %w", v, err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Reset is a no-op: the daily key expires on its own and a new run on the
// same day must not refill it.
func (b *RedisBudget) Reset(ctx context.Context) error {
	return nil
}
