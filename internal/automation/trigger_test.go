package automation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"campaign-automation/internal/metrics"
	"campaign-automation/internal/models"
)

type fakeSource struct {
	agg     metrics.Aggregate
	latest  metrics.Aggregate
	periods []string
}

func (f *fakeSource) Aggregate(_ context.Context, _, period string) (metrics.Aggregate, error) {
	f.periods = append(f.periods, period)
	return f.agg, nil
}

func (f *fakeSource) Latest(context.Context, string) (metrics.Aggregate, error) {
	return f.latest, nil
}

func automationWith(trigger string, cfg any) models.Automation {
	raw, _ := json.Marshal(cfg)
	return models.Automation{
		ID:            "a1",
		Name:          "test rule",
		TriggerType:   trigger,
		TriggerConfig: raw,
		IsActive:      true,
	}
}

func TestSpendLimitTrigger(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{agg: metrics.Aggregate{Spend: 600}}
	ev := NewEvaluator(src)

	a := automationWith(models.TriggerSpendLimit, models.SpendLimitConfig{CampaignID: "c1", Limit: 500})
	got, err := ev.Evaluate(ctx, a, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got.Fired {
		t.Fatalf("spend 600 over limit 500 should fire")
	}
	if got.CampaignID != "c1" {
		t.Fatalf("campaign context not carried: %q", got.CampaignID)
	}

	src.agg.Spend = 500
	got, _ = ev.Evaluate(ctx, a, nil)
	if !got.Fired {
		t.Fatalf("spend equal to limit should fire")
	}

	src.agg.Spend = 400
	got, _ = ev.Evaluate(ctx, a, nil)
	if got.Fired {
		t.Fatalf("spend 400 under limit 500 should not fire")
	}
}

func TestRoasDropFiresOnZeroSpend(t *testing.T) {
	// No spend means ROAS 0, which is below any positive threshold.
	src := &fakeSource{agg: metrics.Aggregate{}}
	ev := NewEvaluator(src)

	a := automationWith(models.TriggerRoasDrop, models.RoasDropConfig{CampaignID: "c1", Threshold: 2})
	got, err := ev.Evaluate(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got.Fired {
		t.Fatalf("zero-spend ROAS should fire a positive threshold")
	}
}

func TestConversionsLowTrigger(t *testing.T) {
	src := &fakeSource{agg: metrics.Aggregate{Conversions: 3}}
	ev := NewEvaluator(src)

	a := automationWith(models.TriggerConversionsLow, models.ConversionsLowConfig{Threshold: 5})
	got, _ := ev.Evaluate(context.Background(), a, nil)
	if !got.Fired {
		t.Fatalf("3 conversions below threshold 5 should fire")
	}

	src.agg.Conversions = 5
	got, _ = ev.Evaluate(context.Background(), a, nil)
	if got.Fired {
		t.Fatalf("conversions equal to threshold should not fire")
	}
}

func TestTimeBasedWindows(t *testing.T) {
	cases := []struct {
		name    string
		windows []string
		at      string
		want    bool
	}{
		{"inside", []string{"09:00-17:00"}, "12:30", true},
		{"start inclusive", []string{"09:00-17:00"}, "09:00", true},
		{"end inclusive", []string{"09:00-17:00"}, "17:00", true},
		{"outside", []string{"09:00-17:00"}, "18:00", false},
		{"midnight span late", []string{"22:00-02:00"}, "23:30", true},
		{"midnight span early", []string{"22:00-02:00"}, "01:00", true},
		{"midnight span out", []string{"22:00-02:00"}, "12:00", false},
		{"second window", []string{"09:00-10:00", "20:00-21:00"}, "20:30", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := NewEvaluator(&fakeSource{})
			ev.now = func() time.Time {
				parsed, err := time.Parse("15:04", tc.at)
				if err != nil {
					t.Fatalf("bad clock %q: %v", tc.at, err)
				}
				return parsed
			}
			a := automationWith(models.TriggerTimeBased, models.TimeBasedConfig{Windows: tc.windows})
			got, err := ev.Evaluate(context.Background(), a, nil)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got.Fired != tc.want {
				t.Fatalf("at %s in %v: fired=%v want %v", tc.at, tc.windows, got.Fired, tc.want)
			}
		})
	}
}

func TestTimeBasedMalformedWindow(t *testing.T) {
	ev := NewEvaluator(&fakeSource{})
	a := automationWith(models.TriggerTimeBased, models.TimeBasedConfig{Windows: []string{"9am-5pm"}})
	if _, err := ev.Evaluate(context.Background(), a, nil); err == nil {
		t.Fatalf("malformed window should error")
	}
}

func TestMetricThresholdOperators(t *testing.T) {
	src := &fakeSource{latest: metrics.Aggregate{ROAS: 1.5, CPC: 2.0, Conversions: 10}}
	ev := NewEvaluator(src)

	cases := []struct {
		metric string
		op     string
		value  float64
		want   bool
	}{
		{"roas", models.OpBelow, 2.0, true},
		{"roas", models.OpAbove, 2.0, false},
		{"cpc", models.OpEquals, 2.0, true},
		{"conversions", models.OpAbove, 5, true},
	}
	for _, tc := range cases {
		a := automationWith(models.TriggerMetricThreshold, models.MetricThresholdConfig{
			CampaignID: "c1", Metric: tc.metric, Operator: tc.op, Value: tc.value,
		})
		got, err := ev.Evaluate(context.Background(), a, nil)
		if err != nil {
			t.Fatalf("%s %s %v: %v", tc.metric, tc.op, tc.value, err)
		}
		if got.Fired != tc.want {
			t.Fatalf("%s %s %v: fired=%v want %v", tc.metric, tc.op, tc.value, got.Fired, tc.want)
		}
	}
}

func TestMetricThresholdUnknownMetric(t *testing.T) {
	ev := NewEvaluator(&fakeSource{})
	a := automationWith(models.TriggerMetricThreshold, models.MetricThresholdConfig{Metric: "impressions", Operator: models.OpAbove})
	if _, err := ev.Evaluate(context.Background(), a, nil); err == nil {
		t.Fatalf("unknown metric should error")
	}
}

func TestEventTrigger(t *testing.T) {
	ev := NewEvaluator(&fakeSource{})
	a := automationWith(models.TriggerEvent, models.EventConfig{Event: "lead_created"})

	got, _ := ev.Evaluate(context.Background(), a, nil)
	if got.Fired {
		t.Fatalf("event trigger must not fire without an event payload")
	}

	got, _ = ev.Evaluate(context.Background(), a, json.RawMessage(`{"event":"lead_created"}`))
	if !got.Fired {
		t.Fatalf("matching event should fire")
	}

	got, _ = ev.Evaluate(context.Background(), a, json.RawMessage(`{"event":"campaign_paused"}`))
	if got.Fired {
		t.Fatalf("mismatched event should not fire")
	}
}

func TestUnknownTriggerType(t *testing.T) {
	ev := NewEvaluator(&fakeSource{})
	a := models.Automation{TriggerType: "phase_of_moon"}
	if _, err := ev.Evaluate(context.Background(), a, nil); err == nil {
		t.Fatalf("unknown trigger type should error")
	}
}
