// Package automation contains the trigger evaluator, the action executor,
// and the engine driver that periodically runs active automations.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"campaign-automation/internal/metrics"
	"campaign-automation/internal/models"
)

// Evaluator decides whether an automation's trigger condition currently holds.
type Evaluator struct {
	metrics metrics.Source
	now     func() time.Time
}

// NewEvaluator builds an evaluator over the given metric source.
func NewEvaluator(src metrics.Source) *Evaluator {
	return &Evaluator{metrics: src, now: time.Now}
}

// Evaluation carries the trigger outcome plus the metric context the actions
// may need for message placeholders.
type Evaluation struct {
	Fired      bool
	CampaignID string
	Metrics    metrics.Aggregate
}

// Evaluate runs the condition for one automation. event is the payload of an
// explicit invocation; event-type triggers fire only when it is present.
// Missing data evaluates with zero-valued sums: spend_limit and
// conversions_low cannot fire then, while roas_drop fires whenever spend is
// zero and the threshold is positive.
func (e *Evaluator) Evaluate(ctx context.Context, a models.Automation, event json.RawMessage) (Evaluation, error) {
	switch a.TriggerType {
	case models.TriggerSpendLimit:
		var cfg models.SpendLimitConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		agg, err := e.metrics.Aggregate(ctx, cfg.CampaignID, cfg.Period)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: agg.Spend >= cfg.Limit, CampaignID: cfg.CampaignID, Metrics: agg}, nil

	case models.TriggerRoasDrop:
		var cfg models.RoasDropConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		agg, err := e.metrics.Aggregate(ctx, cfg.CampaignID, cfg.Period)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: agg.ROAS < cfg.Threshold, CampaignID: cfg.CampaignID, Metrics: agg}, nil

	case models.TriggerConversionsLow:
		var cfg models.ConversionsLowConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		agg, err := e.metrics.Aggregate(ctx, cfg.CampaignID, cfg.Period)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: float64(agg.Conversions) < cfg.Threshold, CampaignID: cfg.CampaignID, Metrics: agg}, nil

	case models.TriggerTimeBased:
		var cfg models.TimeBasedConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		fired, err := anyWindowContains(cfg.Windows, e.now())
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: fired}, nil

	case models.TriggerMetricThreshold:
		var cfg models.MetricThresholdConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		agg, err := e.metrics.Latest(ctx, cfg.CampaignID)
		if err != nil {
			return Evaluation{}, err
		}
		actual, err := metricValue(agg, cfg.Metric)
		if err != nil {
			return Evaluation{}, err
		}
		fired, err := compare(actual, cfg.Operator, cfg.Value)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: fired, CampaignID: cfg.CampaignID, Metrics: agg}, nil

	case models.TriggerEvent:
		var cfg models.EventConfig
		if err := models.DecodeConfig(a.TriggerConfig, &cfg); err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Fired: eventMatches(cfg, event)}, nil

	default:
		return Evaluation{}, fmt.Errorf("unknown trigger type %q", a.TriggerType)
	}
}

func metricValue(agg metrics.Aggregate, metric string) (float64, error) {
	switch metric {
	case "roas":
		return agg.ROAS, nil
	case "cpc":
		return agg.CPC, nil
	case "ctr":
		return agg.CTR, nil
	case "conversions":
		return float64(agg.Conversions), nil
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

func compare(actual float64, operator string, expected float64) (bool, error) {
	switch operator {
	case models.OpBelow:
		return actual < expected, nil
	case models.OpAbove:
		return actual > expected, nil
	case models.OpEquals:
		return actual == expected, nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

func eventMatches(cfg models.EventConfig, event json.RawMessage) bool {
	if len(event) == 0 {
		return false
	}
	if cfg.Event == "" {
		return true
	}
	var payload struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(event, &payload); err != nil {
		return false
	}
	return payload.Event == cfg.Event
}

// anyWindowContains reports whether the local time of day falls inside at
// least one HH:MM-HH:MM window. A window whose start is after its end spans
// midnight.
func anyWindowContains(windows []string, now time.Time) (bool, error) {
	cur := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		start, end, err := parseWindow(w)
		if err != nil {
			return false, err
		}
		if start <= end {
			if cur >= start && cur <= end {
				return true, nil
			}
		} else if cur >= start || cur <= end {
			return true, nil
		}
	}
	return false, nil
}

func parseWindow(w string) (int, int, error) {
	parts := strings.SplitN(w, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time window %q", w)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed time window %q: %w", w, err)
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed time window %q: %w", w, err)
	}
	return start, end, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
