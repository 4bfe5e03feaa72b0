package service

import (
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"
)

const (
	// github hourly call budgets until upstream metadata says otherwise
	anonymousCallLimit     = 60
	authenticatedCallLimit = 5000

	// calls kept unspent so a concurrent consumer never hits a hard 403
	budgetSafetyMargin = 1
)

type budget struct {
	remaining int
	limit     int
	resetAt   time.Time
}

// BudgetTracker does the per-credential remaining/reset accounting shared by
// all refreshes that use the same credential. The empty credential is the
// single anonymous bucket shared by every profile without a token.
// Reservation and the reset-time check are one mutex-guarded step so
// concurrent refreshes cannot over-spend the window.
type BudgetTracker struct {
	mu      sync.Mutex
	buckets map[string]*budget
	now     func() time.Time
}

func NewBudgetTracker() *BudgetTracker {
	return &BudgetTracker{
		buckets: make(map[string]*budget),
		now:     time.Now,
	}
}

func (t *BudgetTracker) bucket(credential string) *budget {
	b, found := t.buckets[credential]
	if found {
		return b
	}

	limit := anonymousCallLimit
	if credential != "" {
		limit = authenticatedCallLimit
	}

	b = &budget{remaining: limit, limit: limit}
	t.buckets[credential] = b
	return b
}

// Reserve claims one call from the credential's budget, failing fast with a
// RateLimitError (carrying the reset time) instead of waiting
func (t *BudgetTracker) Reserve(credential string) error {
	return t.ReserveN(credential, 1)
}

// ReserveN claims n calls at once. Used before a language fan-out so we never
// load languages for only a part of the repositories.
func (t *BudgetTracker) ReserveN(credential string, n int) error {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bucket(credential)
	now := t.now()

	// rolling window boundary comes from upstream metadata, never a local guess
	if !b.resetAt.IsZero() && !now.Before(b.resetAt) {
		b.remaining = b.limit
		b.resetAt = time.Time{}
	}

	if b.remaining-n < budgetSafetyMargin {
		log.WithFields(log.Fields{
			"requested": n,
			"remaining": b.remaining,
			"resetAt":   b.resetAt,
		}).Warning("github call budget exhausted. no upstream call will be made")

		return &model.RateLimitError{ResetAt: b.resetAt}
	}

	b.remaining -= n
	return nil
}

// Observe syncs the bucket with the rate metadata github returned on a call
func (t *BudgetTracker) Observe(credential string, rate github.Rate) {
	if rate.Limit == 0 {
		return
	}

	t.ObserveValues(credential, rate.Remaining, rate.Limit, rate.Reset.Time)
}

// ObserveValues is the header-level variant used by the GraphQL surface
func (t *BudgetTracker) ObserveValues(credential string, remaining, limit int, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bucket(credential)

	if limit > 0 {
		b.limit = limit
	}

	if !resetAt.Equal(b.resetAt) {
		// new window reported upstream: its counter is authoritative
		b.resetAt = resetAt
		b.remaining = remaining
		return
	}

	// same window: headers never re-credit calls reserved locally for
	// requests that are still in flight
	if remaining < b.remaining {
		b.remaining = remaining
	}
}

// MarkExhausted zeroes the bucket after github itself reported a limit hit
func (t *BudgetTracker) MarkExhausted(credential string, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bucket(credential)
	b.remaining = 0

	if !resetAt.IsZero() {
		b.resetAt = resetAt
	}
}
