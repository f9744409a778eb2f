package ratelimit_test

import (
	"testing"
	"time"

	"relay/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cfg = ratelimit.Config{
	Free: ratelimit.Limits{MinIntervalSeconds: 0, MaxPerHour: 2},
	Paid: ratelimit.Limits{MinIntervalSeconds: 60, MaxPerHour: 30},
}

func TestEvaluateFreeTierHourlyQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := ratelimit.State{}

	for i := 0; i < 2; i++ {
		decision := ratelimit.Evaluate(now, state, false, cfg)
		require.True(t, decision.Allowed, "send %d should be allowed", i+1)
		assert.Equal(t, 2-i, decision.RemainingInWindow)
		state = ratelimit.ApplySend(now, state)
	}

	decision := ratelimit.Evaluate(now, state, false, cfg)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ratelimit.ReasonMaxPerHour, decision.Reason)
	require.NotNil(t, decision.NextAllowedAt)
	assert.Equal(t, now.Add(time.Hour), *decision.NextAllowedAt)
	assert.Equal(t, 0, decision.RemainingInWindow)
}

func TestEvaluateMinInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-30 * time.Second)
	start := now.Add(-10 * time.Minute)
	state := ratelimit.State{LastSentAt: &last, WindowStartedAt: &start, SentInWindow: 1}

	decision := ratelimit.Evaluate(now, state, true, cfg)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ratelimit.ReasonMinInterval, decision.Reason)
	require.NotNil(t, decision.NextAllowedAt)
	assert.Equal(t, last.Add(60*time.Second), *decision.NextAllowedAt)

	later := now.Add(time.Minute)
	decision = ratelimit.Evaluate(later, state, true, cfg)
	assert.True(t, decision.Allowed)
}

func TestStaleWindowResetsBeforeEvaluation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-2 * time.Hour)
	last := start
	state := ratelimit.State{LastSentAt: &last, WindowStartedAt: &start, SentInWindow: 2}

	decision := ratelimit.Evaluate(now, state, false, cfg)
	assert.True(t, decision.Allowed, "a stale window must not deny sends")
	assert.Equal(t, 0, decision.Normalized.SentInWindow)
	require.NotNil(t, decision.Normalized.WindowStartedAt)
	assert.Equal(t, now, *decision.Normalized.WindowStartedAt)
}

func TestNormalizeWindowIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	once := ratelimit.NormalizeWindow(now, ratelimit.State{})
	twice := ratelimit.NormalizeWindow(now, once)
	assert.Equal(t, once, twice)

	start := now.Add(-10 * time.Minute)
	fresh := ratelimit.State{WindowStartedAt: &start, SentInWindow: 1}
	assert.Equal(t, fresh, ratelimit.NormalizeWindow(now, fresh))
}

func TestApplySendIncrementsWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-10 * time.Minute)
	state := ratelimit.State{WindowStartedAt: &start, SentInWindow: 1}

	next := ratelimit.ApplySend(now, state)
	assert.Equal(t, 2, next.SentInWindow)
	require.NotNil(t, next.LastSentAt)
	assert.Equal(t, now, *next.LastSentAt)
	require.NotNil(t, next.WindowStartedAt)
	assert.Equal(t, start, *next.WindowStartedAt, "window start is preserved while fresh")
}

func TestApplySendStartsFreshWindowWhenStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-90 * time.Minute)
	state := ratelimit.State{WindowStartedAt: &start, SentInWindow: 5}

	next := ratelimit.ApplySend(now, state)
	assert.Equal(t, 1, next.SentInWindow)
	require.NotNil(t, next.WindowStartedAt)
	assert.Equal(t, now, *next.WindowStartedAt)
}
