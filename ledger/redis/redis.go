// Package redis provides a Redis-backed Ledger for trialproxy.
//
// Counts live in per-day string keys incremented atomically with INCR,
// so the quota survives restarts and is safe to share across multiple
// proxy instances. Key expiry replaces the in-memory purge sweep: each
// key outlives the day it covers by one day and is then dropped by Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/crosstrans/trialproxy"
)

const keyTTL = 48 * time.Hour

// Store is a Redis-backed Ledger.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	limit     int
	now       func() time.Time
}

var _ trialproxy.Ledger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "trialproxy:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Redis-backed Ledger with the given daily limit.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, dailyLimit int, opts ...Option) *Store {
	if dailyLimit <= 0 {
		dailyLimit = trialproxy.DefaultDailyLimit
	}
	s := &Store{
		client:    client,
		keyPrefix: "trialproxy:quota:",
		limit:     dailyLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(callerID, day string) string {
	return s.keyPrefix + callerID + ":" + day
}

func (s *Store) today() string {
	return s.now().UTC().Format(time.DateOnly)
}

func (s *Store) count(ctx context.Context, callerID string) (int, error) {
	count, err := s.client.Get(ctx, s.key(callerID, s.today())).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("trialproxy/redis: get count: %w", err)
	}
	return count, nil
}

// Admit reports whether the caller is under today's limit. Read-only.
func (s *Store) Admit(ctx context.Context, callerID string) (trialproxy.Decision, error) {
	count, err := s.count(ctx, callerID)
	if err != nil {
		return trialproxy.Decision{}, err
	}

	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Decision{Allowed: count < s.limit, Remaining: remaining}, nil
}

// RecordSuccess atomically increments today's count for the caller.
func (s *Store) RecordSuccess(ctx context.Context, callerID string) error {
	key := s.key(callerID, s.today())

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trialproxy/redis: record success: %w", err)
	}
	return nil
}

// CurrentCount returns today's count for the caller (0 if absent).
func (s *Store) CurrentCount(ctx context.Context, callerID string) (int, error) {
	return s.count(ctx, callerID)
}

// Snapshot returns the caller's quota state for today.
func (s *Store) Snapshot(ctx context.Context, callerID string) (trialproxy.Snapshot, error) {
	count, err := s.count(ctx, callerID)
	if err != nil {
		return trialproxy.Snapshot{}, err
	}

	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Snapshot{
		DailyLimit: s.limit,
		UsedToday:  count,
		Remaining:  remaining,
		ResetDate:  s.today(),
		Exhausted:  remaining == 0,
	}, nil
}
