package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"campaign-automation/internal/models"
)

// InsertAnalyticsRow appends one row of aggregated metrics.
func (s *Store) InsertAnalyticsRow(ctx context.Context, p models.AnalyticsPayload) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_history (date, platform, campaign_id, spend, revenue, conversions, impressions, clicks, leads, created_at)
		VALUES (CURRENT_DATE, $1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NOW())
	`, orDefault(p.Platform, "all"), p.CampaignID, p.Spend, p.Revenue, p.Conversions, p.Impressions, p.Clicks, p.Leads)
	if err != nil {
		return fmt.Errorf("insert analytics row: %w", err)
	}
	return nil
}

// MetricSums are summed metrics over a window, with derived ratios. ROAS is 0
// when spend is 0, CPC is 0 when clicks are 0, CTR is 0 when impressions are 0.
type MetricSums struct {
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Conversions int64   `json:"conversions"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	ROAS        float64 `json:"roas"`
	CPC         float64 `json:"cpc"`
	CTR         float64 `json:"ctr"`
}

func (m *MetricSums) derive() {
	if m.Spend > 0 {
		m.ROAS = m.Revenue / m.Spend
	}
	if m.Clicks > 0 {
		m.CPC = m.Spend / float64(m.Clicks)
	}
	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions) * 100
	}
}

// AggregateMetrics sums analytics rows since the given time, optionally
// scoped to one campaign. An empty window yields zero-valued sums, not an
// error.
func (s *Store) AggregateMetrics(ctx context.Context, campaignID string, since time.Time) (MetricSums, error) {
	var m MetricSums
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(spend), 0), COALESCE(SUM(revenue), 0),
		       COALESCE(SUM(conversions), 0), COALESCE(SUM(impressions), 0),
		       COALESCE(SUM(clicks), 0)
		FROM analytics_history
		WHERE created_at >= $1 AND ($2 = '' OR campaign_id = $2)
	`, since, campaignID).Scan(&m.Spend, &m.Revenue, &m.Conversions, &m.Impressions, &m.Clicks)
	if err != nil {
		return MetricSums{}, fmt.Errorf("aggregate metrics: %w", err)
	}
	m.derive()
	return m, nil
}

// LatestMetrics returns the most recent analytics row for a campaign as a
// derived aggregate. A missing row yields zero values.
func (s *Store) LatestMetrics(ctx context.Context, campaignID string) (MetricSums, error) {
	var m MetricSums
	err := s.pool.QueryRow(ctx, `
		SELECT spend, revenue, conversions, impressions, clicks
		FROM analytics_history
		WHERE ($1 = '' OR campaign_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`, campaignID).Scan(&m.Spend, &m.Revenue, &m.Conversions, &m.Impressions, &m.Clicks)
	if errors.Is(err, pgx.ErrNoRows) {
		return MetricSums{}, nil
	}
	if err != nil {
		return MetricSums{}, fmt.Errorf("latest metrics: %w", err)
	}
	m.derive()
	return m, nil
}

// AggregateMetricsBetween sums analytics rows inside a closed date range.
func (s *Store) AggregateMetricsBetween(ctx context.Context, from, to time.Time) (MetricSums, error) {
	var m MetricSums
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(spend), 0), COALESCE(SUM(revenue), 0),
		       COALESCE(SUM(conversions), 0), COALESCE(SUM(impressions), 0),
		       COALESCE(SUM(clicks), 0)
		FROM analytics_history
		WHERE created_at >= $1 AND created_at <= $2
	`, from, to).Scan(&m.Spend, &m.Revenue, &m.Conversions, &m.Impressions, &m.Clicks)
	if err != nil {
		return MetricSums{}, fmt.Errorf("aggregate metrics range: %w", err)
	}
	m.derive()
	return m, nil
}

// PlatformSums groups metric sums by ad platform.
type PlatformSums struct {
	Platform    string  `json:"platform"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Conversions int64   `json:"conversions"`
}

// PlatformBreakdown sums spend/revenue/conversions per platform in a range.
func (s *Store) PlatformBreakdown(ctx context.Context, from, to time.Time) ([]PlatformSums, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT platform, COALESCE(SUM(spend), 0), COALESCE(SUM(revenue), 0), COALESCE(SUM(conversions), 0)
		FROM analytics_history
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY platform
		ORDER BY SUM(spend) DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("platform breakdown: %w", err)
	}
	defer rows.Close()

	var out []PlatformSums
	for rows.Next() {
		var p PlatformSums
		if err := rows.Scan(&p.Platform, &p.Spend, &p.Revenue, &p.Conversions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteAnalyticsBefore prunes analytics rows older than the cutoff.
func (s *Store) DeleteAnalyticsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analytics_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete analytics rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertSyncHistory records the outcome of one platform data sync.
func (s *Store) InsertSyncHistory(ctx context.Context, platforms []string, campaigns, leads int, data json.RawMessage) error {
	platformsJSON, err := json.Marshal(platforms)
	if err != nil {
		return fmt.Errorf("marshal platforms: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform_sync_history (sync_date, platforms, campaigns_count, leads_count, data, created_at)
		VALUES (CURRENT_DATE, $1, $2, $3, $4, NOW())
	`, platformsJSON, campaigns, leads, nullableJSON(data))
	if err != nil {
		return fmt.Errorf("insert sync history: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
