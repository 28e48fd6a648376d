package trialproxy

import "context"

// DefaultDailyLimit is the number of successful requests a caller may make
// per UTC day unless configured otherwise.
const DefaultDailyLimit = 100

// Ledger tracks per-caller, per-UTC-day usage. Implementations must make
// Admit, RecordSuccess and CurrentCount linearizable with respect to each
// other: concurrent increments for the same caller must all be reflected.
type Ledger interface {
	// Admit reports whether the caller may issue another request today.
	// It does not mutate state.
	Admit(ctx context.Context, callerID string) (Decision, error)

	// RecordSuccess adds one successful request to the caller's count for
	// today, creating the entry if absent.
	RecordSuccess(ctx context.Context, callerID string) error

	// CurrentCount returns today's recorded successes for the caller
	// (0 if absent).
	CurrentCount(ctx context.Context, callerID string) (int, error)

	// Snapshot returns the caller's quota state for display.
	Snapshot(ctx context.Context, callerID string) (Snapshot, error)
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Snapshot describes a caller's quota state for the current UTC day.
// Field names follow the client-facing quota info shape.
type Snapshot struct {
	DailyLimit int    `json:"daily_limit"`
	UsedToday  int    `json:"used_today"`
	Remaining  int    `json:"remaining"`
	ResetDate  string `json:"reset_date"`
	Exhausted  bool   `json:"is_exhausted"`
}
