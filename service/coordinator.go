package service

import (
	"context"
	"sync"
	"time"

	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"
)

// RefreshFailure records the last total-aggregation failure per profile for
// observability. It never reaches read-path consumers.
type RefreshFailure struct {
	Kind string    `json:"kind"`
	Err  error     `json:"-"`
	At   time.Time `json:"at"`
}

// Coordinator drives refreshes. It has no internal clock, triggers come from
// the scheduler or the manual refresh endpoint. At most one refresh runs per
// profile: a duplicate trigger fails fast with ErrRefreshInProgress instead of
// queuing.
type Coordinator struct {
	aggregator Aggregator
	store      *SnapshotStore
	profiles   *ProfileRegistry

	mu       sync.Mutex
	inFlight map[string]struct{}
	lastErr  map[string]RefreshFailure
}

func NewCoordinator(aggregator Aggregator, store *SnapshotStore, profiles *ProfileRegistry) *Coordinator {
	return &Coordinator{
		aggregator: aggregator,
		store:      store,
		profiles:   profiles,
		inFlight:   make(map[string]struct{}),
		lastErr:    make(map[string]RefreshFailure),
	}
}

// tryAcquire is the single check-and-set for the per-profile in-flight marker
func (c *Coordinator) tryAcquire(profileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, running := c.inFlight[profileID]; running {
		return false
	}

	c.inFlight[profileID] = struct{}{}
	return true
}

func (c *Coordinator) release(profileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, profileID)
}

// Refresh runs one aggregation cycle for the profile. On success (full or
// partial) the stored snapshot is replaced; on total failure the store is left
// untouched and the failure is recorded for observability only.
func (c *Coordinator) Refresh(ctx context.Context, profileID string) error {
	profile, found := c.profiles.Get(profileID)
	if !found {
		return model.ErrNotFound
	}

	if !c.tryAcquire(profileID) {
		log.WithField("profileId", profileID).Debug("refresh already in progress, skipping")
		return model.ErrRefreshInProgress
	}
	defer c.release(profileID)

	snapshot, err := c.aggregator.Aggregate(ctx, profile)

	if err != nil {
		failure := RefreshFailure{
			Kind: model.ErrorCode(err),
			Err:  err,
			At:   time.Now(),
		}

		c.mu.Lock()
		c.lastErr[profileID] = failure
		c.mu.Unlock()

		log.WithFields(log.Fields{
			"profileId": profileID,
			"kind":      failure.Kind,
		}).WithError(err).Error("refresh failed, keeping previous snapshot")

		return err
	}

	if err := c.store.Put(profileID, *snapshot); err != nil {
		log.WithField("profileId", profileID).WithError(err).Error("unable to store snapshot")
		return err
	}

	c.mu.Lock()
	delete(c.lastErr, profileID)
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"profileId":   profileID,
		"fetchErrors": snapshot.FetchErrors,
	}).Info("snapshot refreshed")

	return nil
}

// LastError returns the recorded failure of the most recent refresh attempt,
// if that attempt failed entirely
func (c *Coordinator) LastError(profileID string) (RefreshFailure, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	failure, found := c.lastErr[profileID]
	return failure, found
}
