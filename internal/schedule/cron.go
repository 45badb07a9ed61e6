// Package schedule runs cron-driven producers that enqueue recurring
// maintenance jobs: retention cleanup, platform sync, and scheduled reports.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"campaign-automation/internal/config"
	"campaign-automation/internal/models"
	"campaign-automation/internal/store"
)

// Enqueuer is the producer side of the job store.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, p store.EnqueueJobParams) (models.Job, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	log  *logrus.Logger
	cron *cron.Cron
}

// New registers the configured producers. Empty cron specs disable their
// producer.
func New(log *logrus.Logger, cfg config.Config, jobs Enqueuer) (*Scheduler, error) {
	c := cron.New()

	add := func(spec, jobType string, payload any, priority int) error {
		if spec == "" {
			return nil
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", jobType, err)
		}
		_, err = c.AddFunc(spec, func() {
			_, err := jobs.EnqueueJob(context.Background(), store.EnqueueJobParams{
				Type:     jobType,
				Payload:  raw,
				Priority: priority,
			})
			if err != nil {
				log.WithError(err).WithField("type", jobType).Error("cron enqueue failed")
				return
			}
			log.WithField("type", jobType).Debug("cron job enqueued")
		})
		if err != nil {
			return fmt.Errorf("register %s cron %q: %w", jobType, spec, err)
		}
		return nil
	}

	if err := add(cfg.CleanupCronSpec, models.JobCleanupData, models.CleanupPayload{Days: cfg.RetentionDays}, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.SyncCronSpec, models.JobSyncPlatformData, models.SyncPayload{Settings: cfg.PlatformSettings}, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.ReportCronSpec, models.JobGenerateReport, models.ReportPayload{}, 0); err != nil {
		return nil, err
	}

	return &Scheduler{log: log, cron: c}, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron producers started")
}

// Stop halts scheduling; a running producer finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
