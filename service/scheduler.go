package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"
)

// refreshes for different profiles are independent, one slow profile must not
// starve the rest of the cycle
const refreshTimeout = 5 * time.Minute

// Scheduler triggers a refresh for every configured profile on the cron
// schedule. It only triggers: all coordination (in-flight dedup, store
// updates, failure records) lives in the Coordinator.
type Scheduler struct {
	cron         *cron.Cron
	coordinator  *Coordinator
	profiles     *ProfileRegistry
	schedule     string
	runOnStartup bool
}

func NewScheduler(cfg config.Config, coordinator *Coordinator, profiles *ProfileRegistry) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		coordinator:  coordinator,
		profiles:     profiles,
		schedule:     cfg.Scheduler.CronSchedule,
		runOnStartup: cfg.Scheduler.RunOnStartup,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.refreshAll); err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("schedule", s.schedule).Info("refresh scheduler started")

	if s.runOnStartup {
		go s.refreshAll()
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) refreshAll() {
	for _, profile := range s.profiles.All() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		err := s.coordinator.Refresh(ctx, profile.ID)
		cancel()

		if errors.Is(err, model.ErrRefreshInProgress) {
			log.WithField("profileId", profile.ID).Debug("scheduled refresh skipped, already running")
			continue
		}

		if err != nil {
			log.WithField("profileId", profile.ID).WithError(err).Warning("scheduled refresh failed")
		}
	}
}
