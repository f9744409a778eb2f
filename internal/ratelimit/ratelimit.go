package ratelimit

import "time"

// Window is the rolling accounting period for per-user send quotas.
const Window = time.Hour

const (
	ReasonMinInterval = "MIN_INTERVAL"
	ReasonMaxPerHour  = "MAX_PER_HOUR"
)

// State is a user's counter row as read from the store.
type State struct {
	LastSentAt      *time.Time
	WindowStartedAt *time.Time
	SentInWindow    int
}

type Limits struct {
	MinIntervalSeconds int
	MaxPerHour         int
}

type Config struct {
	Free Limits
	Paid Limits
}

func (c Config) For(paidUser bool) Limits {
	if paidUser {
		return c.Paid
	}
	return c.Free
}

// Decision is the outcome of evaluating a send against the limits.
type Decision struct {
	Allowed           bool
	Reason            string
	NextAllowedAt     *time.Time
	RemainingInWindow int
	Normalized        State
}

// NormalizeWindow resets a stale or unset window to start now with a zero
// count. It is idempotent and has no side effects; the counter row is only
// written when a send actually happens.
func NormalizeWindow(now time.Time, s State) State {
	if s.WindowStartedAt == nil || !now.Before(s.WindowStartedAt.Add(Window)) {
		start := now
		return State{LastSentAt: s.LastSentAt, WindowStartedAt: &start, SentInWindow: 0}
	}
	return s
}

// Evaluate decides whether a send is allowed right now. The min-interval gate
// runs first, then the hourly quota.
func Evaluate(now time.Time, s State, paidUser bool, cfg Config) Decision {
	limits := cfg.For(paidUser)
	normalized := NormalizeWindow(now, s)
	remaining := limits.MaxPerHour - normalized.SentInWindow
	if remaining < 0 {
		remaining = 0
	}

	if limits.MinIntervalSeconds > 0 && normalized.LastSentAt != nil {
		earliest := normalized.LastSentAt.Add(time.Duration(limits.MinIntervalSeconds) * time.Second)
		if now.Before(earliest) {
			return Decision{
				Reason:            ReasonMinInterval,
				NextAllowedAt:     &earliest,
				RemainingInWindow: remaining,
				Normalized:        normalized,
			}
		}
	}

	if normalized.SentInWindow >= limits.MaxPerHour {
		var nextAllowed *time.Time
		if normalized.WindowStartedAt != nil {
			t := normalized.WindowStartedAt.Add(Window)
			nextAllowed = &t
		}
		return Decision{
			Reason:        ReasonMaxPerHour,
			NextAllowedAt: nextAllowed,
			Normalized:    normalized,
		}
	}

	return Decision{
		Allowed:           true,
		RemainingInWindow: remaining,
		Normalized:        normalized,
	}
}

// ApplySend charges one send against the window. Callers must apply it at
// most once per successful send.
func ApplySend(now time.Time, s State) State {
	normalized := NormalizeWindow(now, s)
	sent := now
	return State{
		LastSentAt:      &sent,
		WindowStartedAt: normalized.WindowStartedAt,
		SentInWindow:    normalized.SentInWindow + 1,
	}
}
