package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"campaign-automation/internal/models"
)

const jobColumns = `id, type, payload, status, priority, delay_until, attempts, max_attempts, created_at, started_at, completed_at, result, error_message`

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// EnqueueJobParams collects inputs required to insert a job.
type EnqueueJobParams struct {
	Type        string
	Payload     json.RawMessage
	Priority    int
	DelayUntil  time.Time
	MaxAttempts int
}

// EnqueueJob inserts a pending job row.
func (s *Store) EnqueueJob(ctx context.Context, p EnqueueJobParams) (models.Job, error) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if len(p.Payload) == 0 {
		p.Payload = json.RawMessage(`{}`)
	}
	now := time.Now().UTC()
	if p.DelayUntil.IsZero() {
		p.DelayUntil = now
	}
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, payload, status, priority, delay_until, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`, id, p.Type, p.Payload, models.StatusPending, p.Priority, p.DelayUntil, p.MaxAttempts, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:          id,
		Type:        p.Type,
		Payload:     p.Payload,
		Status:      models.StatusPending,
		Priority:    p.Priority,
		DelayUntil:  p.DelayUntil,
		Attempts:    0,
		MaxAttempts: p.MaxAttempts,
		CreatedAt:   now,
	}, nil
}

// DequeueNext atomically claims the highest-priority, oldest eligible pending
// job and transitions it to processing with started_at stamped. The row lock
// (FOR UPDATE SKIP LOCKED) guarantees two concurrent processors never claim
// the same job. Returns false when no job is eligible.
func (s *Store) DequeueNext(ctx context.Context) (models.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $2 AND delay_until <= NOW()
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.StatusProcessing, models.StatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

// CompleteJob marks a job completed, recording its result.
func (s *Store) CompleteJob(ctx context.Context, id string, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, completed_at = NOW(), result = $3, error_message = NULL
		WHERE id = $1
	`, id, models.StatusCompleted, result)
	return err
}

// RetryJob re-queues a failed attempt with an updated attempt count and a
// future delay_until. completed_at is stamped so the just-finished attempt's
// duration stays computable.
func (s *Store) RetryJob(ctx context.Context, id string, attempts int, delayUntil time.Time, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, delay_until = $4, completed_at = NOW(), error_message = $5
		WHERE id = $1
	`, id, models.StatusPending, attempts, delayUntil, errMsg)
	return err
}

// FailJob marks a job terminally failed.
func (s *Store) FailJob(ctx context.Context, id string, attempts int, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, completed_at = NOW(), error_message = $4
		WHERE id = $1
	`, id, models.StatusFailed, attempts, errMsg)
	return err
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrJobNotFound
	}
	return job, err
}

// RecentJobs returns the most recently created jobs, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// QueueStats summarizes the most recent jobs: counts by status and the
// average processing time of completed jobs in the window.
type QueueStats struct {
	Pending              int          `json:"pending"`
	Processing           int          `json:"processing"`
	Completed            int          `json:"completed"`
	Failed               int          `json:"failed"`
	AvgProcessingSeconds float64      `json:"avgProcessingTimeSeconds"`
	RecentJobs           []models.Job `json:"recentJobs"`
}

// GetQueueStats computes queue statistics over the most recent limit jobs.
func (s *Store) GetQueueStats(ctx context.Context, limit int) (QueueStats, error) {
	jobs, err := s.RecentJobs(ctx, limit)
	if err != nil {
		return QueueStats{}, err
	}

	stats := QueueStats{RecentJobs: jobs}
	var totalSecs float64
	var completedWithTimes int
	for _, j := range jobs {
		switch j.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusProcessing:
			stats.Processing++
		case models.StatusCompleted:
			stats.Completed++
			if j.StartedAt != nil && j.CompletedAt != nil {
				totalSecs += j.CompletedAt.Sub(*j.StartedAt).Seconds()
				completedWithTimes++
			}
		case models.StatusFailed:
			stats.Failed++
		}
	}
	if completedWithTimes > 0 {
		stats.AvgProcessingSeconds = totalSecs / float64(completedWithTimes)
	}
	return stats, nil
}

// CountEligibleJobs returns the number of pending jobs whose delay has passed.
func (s *Store) CountEligibleJobs(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = $1 AND delay_until <= NOW()
	`, models.StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count eligible jobs: %w", err)
	}
	return n, nil
}

// DeleteTerminalJobsBefore removes completed and failed jobs created before
// the cutoff. Pending and processing rows are never touched.
func (s *Store) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE created_at < $1 AND status IN ($2, $3)
	`, cutoff, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var started, completed pgtype.Timestamptz
	var result []byte
	var lastErr pgtype.Text

	err := row.Scan(&job.ID, &job.Type, &job.Payload, &job.Status, &job.Priority,
		&job.DelayUntil, &job.Attempts, &job.MaxAttempts, &job.CreatedAt,
		&started, &completed, &result, &lastErr)
	if err != nil {
		return models.Job{}, err
	}
	job.StartedAt = tsPtr(started)
	job.CompletedAt = tsPtr(completed)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	job.ErrorMessage = textPtr(lastErr)
	return job, nil
}
