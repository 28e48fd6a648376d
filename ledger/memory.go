package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/crosstrans/trialproxy"
)

// Memory is an in-memory Ledger keyed by (caller, UTC date). A process
// restart resets all quotas to zero; this is a documented limitation, not
// a bug. Entries for past days are purged on every RecordSuccess, which
// bounds memory growth without a background sweeper.
type Memory struct {
	mu     sync.Mutex
	limit  int
	now    func() time.Time
	counts map[dayKey]int
}

type dayKey struct {
	caller string
	day    string
}

var _ trialproxy.Ledger = (*Memory)(nil)

// Option configures a Memory ledger.
type Option func(*Memory)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory ledger with the given daily limit.
// A non-positive limit falls back to the default.
func NewMemory(dailyLimit int, opts ...Option) *Memory {
	if dailyLimit <= 0 {
		dailyLimit = trialproxy.DefaultDailyLimit
	}
	m := &Memory{
		limit:  dailyLimit,
		now:    time.Now,
		counts: make(map[dayKey]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Admit reports whether the caller is under today's limit. Read-only.
func (m *Memory) Admit(_ context.Context, callerID string) (trialproxy.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.counts[dayKey{caller: callerID, day: m.today()}]
	remaining := m.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Decision{Allowed: count < m.limit, Remaining: remaining}, nil
}

// RecordSuccess increments today's count for the caller and purges entries
// from other days.
func (m *Memory) RecordSuccess(_ context.Context, callerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	for k := range m.counts {
		if k.day != today {
			delete(m.counts, k)
		}
	}
	m.counts[dayKey{caller: callerID, day: today}]++
	return nil
}

// CurrentCount returns today's count for the caller (0 if absent).
func (m *Memory) CurrentCount(_ context.Context, callerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts[dayKey{caller: callerID, day: m.today()}], nil
}

// Snapshot returns the caller's quota state for today.
func (m *Memory) Snapshot(_ context.Context, callerID string) (trialproxy.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	used := m.counts[dayKey{caller: callerID, day: today}]
	remaining := m.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return trialproxy.Snapshot{
		DailyLimit: m.limit,
		UsedToday:  used,
		Remaining:  remaining,
		ResetDate:  today,
		Exhausted:  remaining == 0,
	}, nil
}

func (m *Memory) today() string {
	return m.now().UTC().Format(time.DateOnly)
}
