package trialproxy

import "time"

// Meter observes gateway and dispatch events for monitoring/logging.
type Meter interface {
	// OnAttempt is called before each upstream provider call.
	OnAttempt(event AttemptEvent)

	// OnResult is called when an upstream provider call completes.
	OnResult(event ResultEvent)

	// OnRequest is called when an inbound request finishes.
	OnRequest(event RequestEvent)
}

// AttemptEvent describes an upstream call about to be made.
type AttemptEvent struct {
	RequestID  string
	Provider   string
	Model      string
	AttemptNum int
}

// ResultEvent describes the outcome of an upstream call.
type ResultEvent struct {
	RequestID string
	Provider  string
	Model     string
	Success   bool
	Status    int // HTTP status, 0 for transport failures
	Duration  time.Duration
	Err       error
}

// RequestEvent describes a completed inbound request.
type RequestEvent struct {
	RequestID string
	CallerID  string
	Status    int
	Provider  string // display name of the provider that served, if any
	Remaining int
	Duration  time.Duration
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAttempt(AttemptEvent) {}
func (noopMeter) OnResult(ResultEvent)   {}
func (noopMeter) OnRequest(RequestEvent) {}
