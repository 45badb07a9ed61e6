package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"campaign-automation/internal/models"
)

const automationColumns = `id, name, description, trigger_type, trigger_config, actions, is_active, last_run, run_count, created_at`

// ErrAutomationNotFound is returned when an automation id does not exist.
var ErrAutomationNotFound = errors.New("automation not found")

// ListActiveAutomations returns every automation with is_active = true.
func (s *Store) ListActiveAutomations(ctx context.Context) ([]models.Automation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+automationColumns+` FROM automations WHERE is_active = TRUE ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query active automations: %w", err)
	}
	defer rows.Close()

	var out []models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAutomation fetches one automation by id, active or not.
func (s *Store) GetAutomation(ctx context.Context, id string) (models.Automation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Automation{}, ErrAutomationNotFound
	}
	return a, err
}

// UpdateLastRun stamps the automation's most recent evaluation time.
func (s *Store) UpdateLastRun(ctx context.Context, id string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE automations SET last_run = $2 WHERE id = $1`, id, t)
	return err
}

// IncrementRunCount bumps the successful-execution counter.
func (s *Store) IncrementRunCount(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE automations SET run_count = run_count + 1 WHERE id = $1`, id)
	return err
}

// AppendExecution writes one immutable audit row for an evaluation pass.
func (s *Store) AppendExecution(ctx context.Context, e models.AutomationExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO automation_executions (automation_id, triggered, executed, message, trigger_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, e.AutomationID, e.Triggered, e.Executed, e.Message, nullableJSON(e.TriggerData))
	return err
}

// ListExecutions returns the most recent execution rows for one automation.
func (s *Store) ListExecutions(ctx context.Context, automationID string, limit int) ([]models.AutomationExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, automation_id, triggered, executed, message, trigger_data, created_at
		FROM automation_executions
		WHERE automation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationExecution
	for rows.Next() {
		var e models.AutomationExecution
		var data []byte
		if err := rows.Scan(&e.ID, &e.AutomationID, &e.Triggered, &e.Executed, &e.Message, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			e.TriggerData = json.RawMessage(data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FlagForReview records an escalate_review action for manual follow-up.
func (s *Store) FlagForReview(ctx context.Context, automationID, campaignID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO review_flags (automation_id, campaign_id, reason, created_at)
		VALUES ($1, NULLIF($2, ''), $3, NOW())
	`, automationID, campaignID, reason)
	return err
}

func scanAutomation(row pgx.Row) (models.Automation, error) {
	var a models.Automation
	var lastRun pgtype.Timestamptz
	var actionsJSON []byte

	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.TriggerType, &a.TriggerConfig,
		&actionsJSON, &a.IsActive, &lastRun, &a.RunCount, &a.CreatedAt)
	if err != nil {
		return models.Automation{}, err
	}
	a.LastRun = tsPtr(lastRun)
	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &a.Actions); err != nil {
			return models.Automation{}, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	return a, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
