package trialproxy

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidRequest = errors.New("trialproxy: invalid request")
	ErrQuotaExceeded  = errors.New("trialproxy: daily quota exceeded")
	ErrNoProviders    = errors.New("trialproxy: no active providers configured")
	ErrAllFailed      = errors.New("trialproxy: all providers failed")
)

// DispatchError wraps a terminal dispatch failure with the ordered list of
// per-provider attempt records, most recent last.
type DispatchError struct {
	Err      error
	Attempts []Attempt
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("trialproxy: dispatch failed after %d attempts: %v", len(e.Attempts), e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// LastAttempt returns the most recent attempt record, if any.
func (e *DispatchError) LastAttempt() (Attempt, bool) {
	if len(e.Attempts) == 0 {
		return Attempt{}, false
	}
	return e.Attempts[len(e.Attempts)-1], true
}
