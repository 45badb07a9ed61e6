// Package metrics provides read-only access to aggregated campaign metrics
// for trigger evaluation.
package metrics

import (
	"context"
	"time"

	"campaign-automation/internal/models"
	"campaign-automation/internal/store"
)

// Aggregate is one window of summed campaign metrics with derived ratios.
type Aggregate struct {
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Conversions int64   `json:"conversions"`
	ROAS        float64 `json:"roas"`
	CPC         float64 `json:"cpc"`
	CTR         float64 `json:"ctr"`
}

// Source provides aggregated metrics over a rolling period and the latest
// available snapshot. Implementations return zero-valued aggregates, not
// errors, when no data exists for the window.
type Source interface {
	Aggregate(ctx context.Context, campaignID, period string) (Aggregate, error)
	Latest(ctx context.Context, campaignID string) (Aggregate, error)
}

// Window translates a rolling period name into its lookback duration.
// Unknown or empty periods default to daily.
func Window(period string) time.Duration {
	switch period {
	case models.PeriodWeekly:
		return 7 * 24 * time.Hour
	case models.PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// StoreSource reads aggregates from the analytics history in Postgres.
type StoreSource struct {
	store *store.Store
	now   func() time.Time
}

// NewStoreSource wraps the Postgres store as a metric source.
func NewStoreSource(st *store.Store) *StoreSource {
	return &StoreSource{store: st, now: time.Now}
}

func (s *StoreSource) Aggregate(ctx context.Context, campaignID, period string) (Aggregate, error) {
	sums, err := s.store.AggregateMetrics(ctx, campaignID, s.now().Add(-Window(period)))
	if err != nil {
		return Aggregate{}, err
	}
	return fromSums(sums), nil
}

func (s *StoreSource) Latest(ctx context.Context, campaignID string) (Aggregate, error) {
	sums, err := s.store.LatestMetrics(ctx, campaignID)
	if err != nil {
		return Aggregate{}, err
	}
	return fromSums(sums), nil
}

func fromSums(m store.MetricSums) Aggregate {
	return Aggregate{
		Spend:       m.Spend,
		Revenue:     m.Revenue,
		Conversions: m.Conversions,
		ROAS:        m.ROAS,
		CPC:         m.CPC,
		CTR:         m.CTR,
	}
}
