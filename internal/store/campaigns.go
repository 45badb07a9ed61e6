package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrCampaignNotFound is returned when a campaign id does not exist.
var ErrCampaignNotFound = errors.New("campaign not found")

// Campaign is the slice of campaign state the automation core touches.
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform"`
	Status    string    `json:"status"`
	Budget    float64   `json:"budget"`
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetCampaign fetches one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	var c Campaign
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, platform, status, budget, user_id, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Platform, &c.Status, &c.Budget, &c.UserID, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrCampaignNotFound
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns campaigns ordered by most recent update.
func (s *Store) ListCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, platform, status, budget, user_id, updated_at
		FROM campaigns ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Platform, &c.Status, &c.Budget, &c.UserID, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCampaignStatus updates a campaign's status.
func (s *Store) SetCampaignStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// Budget adjustment modes.
const (
	BudgetFixed      = "fixed"
	BudgetPercentage = "percentage"
)

// AdjustCampaignBudget applies a fixed replacement or a percentage delta to a
// campaign's budget and returns the new value.
func (s *Store) AdjustCampaignBudget(ctx context.Context, id string, value float64, mode string) (float64, error) {
	var query string
	switch mode {
	case BudgetPercentage:
		query = `UPDATE campaigns SET budget = budget * (1 + $2 / 100.0), updated_at = NOW() WHERE id = $1 RETURNING budget`
	case BudgetFixed, "":
		query = `UPDATE campaigns SET budget = $2, updated_at = NOW() WHERE id = $1 RETURNING budget`
	default:
		return 0, fmt.Errorf("unknown budget mode %q", mode)
	}

	var budget float64
	err := s.pool.QueryRow(ctx, query, id, value).Scan(&budget)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCampaignNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust budget: %w", err)
	}
	return budget, nil
}
