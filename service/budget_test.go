package service

import (
	"testing"
	"time"

	"github.com/simstech/github-stats-service/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBudgetTrackerAnonymousExhaustion checks the anonymous bucket never
// spends past the safety margin and fails without a network call
func TestBudgetTrackerAnonymousExhaustion(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base }

	// 60 calls/hour with a margin of 1 leaves 59 usable calls
	for i := 0; i < 59; i++ {
		require.NoError(t, tracker.Reserve(""), "call %d should fit the budget", i+1)
	}

	err := tracker.Reserve("")
	require.Error(t, err)

	var rateLimitErr *model.RateLimitError
	assert.ErrorAs(t, err, &rateLimitErr)
}

// TestBudgetTrackerResetWindow checks the bucket refills once the
// upstream-reported reset time passes
func TestBudgetTrackerResetWindow(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	now := base
	tracker.now = func() time.Time { return now }

	resetAt := base.Add(time.Hour)
	tracker.ObserveValues("", 1, 60, resetAt)

	err := tracker.Reserve("")
	require.Error(t, err)

	var rateLimitErr *model.RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, resetAt, rateLimitErr.ResetAt)

	// once the window rolls over the budget is usable again
	now = base.Add(2 * time.Hour)
	assert.NoError(t, tracker.Reserve(""))
}

// TestBudgetTrackerPerCredentialBuckets checks budgets are tracked
// independently per credential, with the anonymous bucket shared
func TestBudgetTrackerPerCredentialBuckets(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base }

	tracker.ObserveValues("", 1, 60, base.Add(time.Hour))

	assert.Error(t, tracker.Reserve(""), "anonymous bucket is exhausted")
	assert.NoError(t, tracker.Reserve("token-a"), "authenticated bucket is unaffected")
	assert.NoError(t, tracker.Reserve("token-b"), "each credential has its own bucket")
}

// TestBudgetTrackerObserveNeverRecredits checks same-window headers cannot
// re-credit calls reserved locally for in-flight requests
func TestBudgetTrackerObserveNeverRecredits(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base }

	resetAt := base.Add(time.Hour)
	tracker.ObserveValues("", 10, 60, resetAt)

	require.NoError(t, tracker.ReserveN("", 5))

	// a stale header from a response that raced the reservation
	tracker.ObserveValues("", 9, 60, resetAt)

	tracker.mu.Lock()
	remaining := tracker.buckets[""].remaining
	tracker.mu.Unlock()

	assert.Equal(t, 5, remaining)
}

// TestBudgetTrackerReserveN checks the all-or-nothing fan-out reservation
func TestBudgetTrackerReserveN(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base }

	tracker.ObserveValues("", 10, 60, base.Add(time.Hour))

	assert.Error(t, tracker.ReserveN("", 10), "10 calls would eat the safety margin")
	assert.NoError(t, tracker.ReserveN("", 9))
	assert.Error(t, tracker.Reserve(""), "budget is down to the margin")
}

// TestBudgetTrackerMarkExhausted checks an upstream-reported limit hit zeroes
// the local bucket
func TestBudgetTrackerMarkExhausted(t *testing.T) {
	tracker := NewBudgetTracker()
	base := time.Now()
	tracker.now = func() time.Time { return base }

	resetAt := base.Add(30 * time.Minute)
	tracker.MarkExhausted("token-a", resetAt)

	err := tracker.Reserve("token-a")
	require.Error(t, err)

	var rateLimitErr *model.RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, resetAt, rateLimitErr.ResetAt)
}
