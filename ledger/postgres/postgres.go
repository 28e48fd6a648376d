// Package postgres provides a PostgreSQL-backed Ledger for trialproxy.
//
// Usage counts live in a (caller_id, day) table with upsert increments,
// giving durability across restarts and safety for multi-instance
// deployments. Rows for past days are deleted on RecordSuccess, matching
// the in-memory purge policy.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crosstrans/trialproxy"
)

// Store is a PostgreSQL-backed Ledger.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	limit       int
	now         func() time.Time
}

var _ trialproxy.Ledger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "trialproxy_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a PostgreSQL-backed Ledger with the given daily limit.
func New(pool *pgxpool.Pool, dailyLimit int, opts ...Option) *Store {
	if dailyLimit <= 0 {
		dailyLimit = trialproxy.DefaultDailyLimit
	}
	s := &Store{
		pool:        pool,
		tablePrefix: "trialproxy_",
		limit:       dailyLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "usage" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			caller_id TEXT NOT NULL,
			day DATE NOT NULL,
			used INT NOT NULL DEFAULT 0,
			PRIMARY KEY (caller_id, day)
		);
	`, s.usageTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("trialproxy/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Store) count(ctx context.Context, callerID string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT used FROM %s WHERE caller_id = $1 AND day = $2`, s.usageTable()),
		callerID, s.today(),
	).Scan(&used)

	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("trialproxy/postgres: count: %w", err)
	}
	return used, nil
}

// Admit reports whether the caller is under today's limit. Read-only.
func (s *Store) Admit(ctx context.Context, callerID string) (trialproxy.Decision, error) {
	used, err := s.count(ctx, callerID)
	if err != nil {
		return trialproxy.Decision{}, err
	}

	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Decision{Allowed: used < s.limit, Remaining: remaining}, nil
}

// RecordSuccess increments today's count for the caller and removes rows
// from past days.
func (s *Store) RecordSuccess(ctx context.Context, callerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("trialproxy/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	today := s.today()

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (caller_id, day, used) VALUES ($1, $2, 1)
			ON CONFLICT (caller_id, day) DO UPDATE SET used = %s.used + 1`,
			s.usageTable(), s.usageTable()),
		callerID, today,
	)
	if err != nil {
		return fmt.Errorf("trialproxy/postgres: increment: %w", err)
	}

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE day < $1`, s.usageTable()),
		today,
	)
	if err != nil {
		return fmt.Errorf("trialproxy/postgres: purge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("trialproxy/postgres: commit: %w", err)
	}
	return nil
}

// CurrentCount returns today's count for the caller (0 if absent).
func (s *Store) CurrentCount(ctx context.Context, callerID string) (int, error) {
	return s.count(ctx, callerID)
}

// Snapshot returns the caller's quota state for today.
func (s *Store) Snapshot(ctx context.Context, callerID string) (trialproxy.Snapshot, error) {
	used, err := s.count(ctx, callerID)
	if err != nil {
		return trialproxy.Snapshot{}, err
	}

	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Snapshot{
		DailyLimit: s.limit,
		UsedToday:  used,
		Remaining:  remaining,
		ResetDate:  s.today().Format(time.DateOnly),
		Exhausted:  remaining == 0,
	}, nil
}
