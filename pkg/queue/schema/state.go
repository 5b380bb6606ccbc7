package schema

import (
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// State is the state of a job. States are ordered so that every state
// before Active is queued, and every state from Completed is terminal.
type State string

// RetryPolicy determines how a failed job is retried
type RetryPolicy struct {
	Limit    int            `json:"retry_limit"`
	Delay    time.Duration  `json:"retry_delay"`
	Backoff  bool           `json:"retry_backoff"`
	DelayMax *time.Duration `json:"retry_delay_max,omitempty"`
}

// Transition is the result of failing a job: the next state, the retry
// count and, when retrying, the delay before the job can be fetched again.
type Transition struct {
	State      State
	RetryCount int
	Delay      time.Duration
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	StateCreated   State = "created"
	StateRetry     State = "retry"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

var states = []State{StateCreated, StateRetry, StateActive, StateCompleted, StateCancelled, StateFailed}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - STATE

// ParseState returns a state from a string
func ParseState(v string) (State, error) {
	for _, s := range states {
		if string(s) == v {
			return s, nil
		}
	}
	return "", pg.ErrBadParameter.Withf("invalid state %q", v)
}

// IsQueued returns true if the job is waiting to be fetched
func (s State) IsQueued() bool {
	return s == StateCreated || s == StateRetry
}

// IsTerminal returns true if the job is completed, cancelled or failed
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// CanTransition returns true if a job in state s may move to state next.
func (s State) CanTransition(next State) bool {
	switch next {
	case StateActive:
		return s.IsQueued()
	case StateRetry:
		// Automatic retry from active, or a manual retry of a failed job
		return s == StateActive || s == StateFailed
	case StateCompleted:
		return s == StateActive || s.IsQueued()
	case StateFailed:
		return !s.IsTerminal()
	case StateCancelled:
		return !s.IsTerminal()
	case StateCreated:
		// Resume
		return s == StateCancelled
	}
	return false
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - RETRY POLICY

// NextDelay returns the delay before retry n, where n is the number of
// retries already made. Without backoff this is the fixed delay. With
// backoff the delay doubles each retry, and is capped at DelayMax, or
// DefaultRetryDelayMax if not set.
func (p RetryPolicy) NextDelay(n int) time.Duration {
	if !p.Backoff || p.Delay <= 0 {
		return seconds(max(p.Delay, 0))
	}

	// Cap the delay
	ceiling := DefaultRetryDelayMax
	if p.DelayMax != nil && *p.DelayMax > 0 {
		ceiling = *p.DelayMax
	}

	// Cap the exponent so the shift does not overflow
	n = min(max(n, 0), MaxBackoffShift)
	if p.Delay > ceiling>>n {
		return seconds(ceiling)
	}
	return seconds(p.Delay << n)
}

// Fail returns the transition for a job in the given state which has made
// retryCount retries
func (p RetryPolicy) Fail(state State, retryCount int) (Transition, error) {
	if !state.CanTransition(StateFailed) {
		return Transition{}, pg.ErrConflict.Withf("cannot fail a job in state %q", state)
	}
	if retryCount < p.Limit {
		return Transition{
			State:      StateRetry,
			RetryCount: retryCount + 1,
			Delay:      p.NextDelay(retryCount),
		}, nil
	}
	return Transition{
		State:      StateFailed,
		RetryCount: retryCount,
	}, nil
}
