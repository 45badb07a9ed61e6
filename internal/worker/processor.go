package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campaign-automation/internal/models"
	"campaign-automation/internal/telemetry"
)

// JobStore is the queue persistence the processor drives. store.Store
// satisfies it; tests use an in-memory fake.
type JobStore interface {
	// DequeueNext atomically claims the highest-priority, oldest eligible
	// pending job into processing, or reports no work.
	DequeueNext(ctx context.Context) (models.Job, bool, error)
	CompleteJob(ctx context.Context, id string, result json.RawMessage) error
	RetryJob(ctx context.Context, id string, attempts int, delayUntil time.Time, errMsg string) error
	FailJob(ctx context.Context, id string, attempts int, errMsg string) error
	CountEligibleJobs(ctx context.Context) (int64, error)
}

// Handler executes one job type and returns its result payload.
type Handler func(ctx context.Context, job models.Job) (json.RawMessage, error)

// Processor drives the dequeue/execute/update loop.
type Processor struct {
	log      *logrus.Logger
	store    JobStore
	handlers map[string]Handler

	pollInterval time.Duration
	// retryPermanent backs off on permanent errors instead of failing fast.
	retryPermanent bool
	now            func() time.Time
}

// NewProcessor builds a processor with no handlers registered.
func NewProcessor(log *logrus.Logger, st JobStore, pollInterval time.Duration, retryPermanent bool) *Processor {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Processor{
		log:            log,
		store:          st,
		handlers:       make(map[string]Handler),
		pollInterval:   pollInterval,
		retryPermanent: retryPermanent,
		now:            time.Now,
	}
}

// RegisterHandler binds a handler to a job type.
func (p *Processor) RegisterHandler(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	p.handlers[jobType] = handler
}

// Run polls for work until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if depth, err := p.store.CountEligibleJobs(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		worked, err := p.ProcessNext(ctx)
		if err != nil {
			p.log.WithError(err).Error("processing cycle failed")
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

// ProcessNext runs one processing cycle: claim the next eligible job,
// dispatch its handler, and write back terminal or retry state. Returns
// false with a nil error when no job is eligible.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, ok, err := p.store.DequeueNext(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if !ok {
		return false, nil
	}

	result, err := p.runHandler(ctx, job)
	if err == nil {
		if err := p.store.CompleteJob(ctx, job.ID, result); err != nil {
			return true, fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		telemetry.JobSuccess.Inc()
		p.log.WithFields(logrus.Fields{"job": job.ID, "type": job.Type}).Info("job completed")
		return true, nil
	}

	attempts := job.Attempts + 1
	failFast := IsPermanent(err) && !p.retryPermanent

	if failFast || attempts >= job.MaxAttempts {
		if ferr := p.store.FailJob(ctx, job.ID, attempts, err.Error()); ferr != nil {
			return true, fmt.Errorf("fail job %s: %w", job.ID, ferr)
		}
		telemetry.JobFailures.Inc()
		p.log.WithFields(logrus.Fields{
			"job":      job.ID,
			"type":     job.Type,
			"attempts": attempts,
		}).WithError(err).Warn("job terminally failed")
		return true, nil
	}

	delayUntil := p.now().Add(Backoff(attempts))
	if rerr := p.store.RetryJob(ctx, job.ID, attempts, delayUntil, err.Error()); rerr != nil {
		return true, fmt.Errorf("retry job %s: %w", job.ID, rerr)
	}
	telemetry.JobRetries.Inc()
	p.log.WithFields(logrus.Fields{
		"job":         job.ID,
		"type":        job.Type,
		"attempts":    attempts,
		"delay_until": delayUntil.UTC().Format(time.RFC3339),
	}).WithError(err).Warn("job re-queued")
	return true, nil
}

// runHandler dispatches to the type's handler. Panics and missing handlers
// become ordinary errors; nothing escapes the processor boundary.
func (p *Processor) runHandler(ctx context.Context, job models.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := p.handlers[job.Type]
	if !ok {
		return nil, Permanentf("unknown job type %q", job.Type)
	}
	return handler(ctx, job)
}

// Backoff returns the retry delay after the given attempt count: 2^attempts
// minutes, doubling per attempt from a 2-minute first retry.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(1<<uint(attempts)) * time.Minute
}
