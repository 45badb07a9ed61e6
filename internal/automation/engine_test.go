package automation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"campaign-automation/internal/metrics"
	"campaign-automation/internal/models"
)

type fakeStore struct {
	automations []models.Automation
	executions  []models.AutomationExecution
	lastRuns    map[string]time.Time
	runCounts   map[string]int
}

func newFakeStore(autos ...models.Automation) *fakeStore {
	return &fakeStore{
		automations: autos,
		lastRuns:    map[string]time.Time{},
		runCounts:   map[string]int{},
	}
}

func (f *fakeStore) ListActiveAutomations(context.Context) ([]models.Automation, error) {
	var active []models.Automation
	for _, a := range f.automations {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active, nil
}

func (f *fakeStore) GetAutomation(_ context.Context, id string) (models.Automation, error) {
	for _, a := range f.automations {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Automation{}, errors.New("automation not found")
}

func (f *fakeStore) UpdateLastRun(_ context.Context, id string, t time.Time) error {
	f.lastRuns[id] = t
	return nil
}

func (f *fakeStore) IncrementRunCount(_ context.Context, id string) error {
	f.runCounts[id]++
	return nil
}

func (f *fakeStore) AppendExecution(_ context.Context, e models.AutomationExecution) error {
	f.executions = append(f.executions, e)
	return nil
}

func newTestEngine(st Store, src metrics.Source, slack *fakeSlack) *Engine {
	eval := NewEvaluator(src)
	x := newTestExecutor(&fakeCampaigns{}, slack, &fakeEmail{}, &fakeReports{}, &fakeReviews{})
	return NewEngine(quietLogger(), st, eval, x, time.Hour, false)
}

func spendAutomation(id string, actions ...models.Action) models.Automation {
	cfg, _ := json.Marshal(models.SpendLimitConfig{CampaignID: "c1", Limit: 100})
	return models.Automation{
		ID:            id,
		Name:          "spend guard " + id,
		TriggerType:   models.TriggerSpendLimit,
		TriggerConfig: cfg,
		Actions:       actions,
		IsActive:      true,
	}
}

func TestExecuteOneSuccess(t *testing.T) {
	st := newFakeStore(spendAutomation("a1", action(models.ActionNotifySlack, models.NotifyConfig{Message: "over budget"})))
	slack := &fakeSlack{}
	eng := newTestEngine(st, &fakeSource{agg: metrics.Aggregate{Spend: 150}}, slack)

	res, err := eng.ExecuteOne(context.Background(), "a1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Triggered || !res.Executed {
		t.Fatalf("expected triggered and executed, got %+v", res)
	}
	if res.Message != "Executed 1/1 actions successfully" {
		t.Fatalf("message %q", res.Message)
	}
	if len(st.executions) != 1 || !st.executions[0].Triggered || !st.executions[0].Executed {
		t.Fatalf("execution row not recorded: %+v", st.executions)
	}
	if st.runCounts["a1"] != 1 {
		t.Fatalf("run count %d, want 1", st.runCounts["a1"])
	}
	if _, ok := st.lastRuns["a1"]; !ok {
		t.Fatalf("last run not stamped")
	}
}

func TestExecuteOnePartialFailure(t *testing.T) {
	st := newFakeStore(spendAutomation("a1",
		action(models.ActionNotifySlack, models.NotifyConfig{Message: "x"}),
		action(models.ActionPauseCampaign, models.PauseCampaignConfig{CampaignID: "c1"}),
	))
	eng := newTestEngine(st, &fakeSource{agg: metrics.Aggregate{Spend: 150}}, &fakeSlack{err: errors.New("down")})

	res, err := eng.ExecuteOne(context.Background(), "a1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Triggered || res.Executed {
		t.Fatalf("partial failure must report triggered but not executed: %+v", res)
	}
	if res.Message != "Executed 1/2 actions successfully" {
		t.Fatalf("message %q", res.Message)
	}
	if st.runCounts["a1"] != 0 {
		t.Fatalf("partial success must not count a run, got %d", st.runCounts["a1"])
	}
}

func TestExecuteOneNotFired(t *testing.T) {
	st := newFakeStore(spendAutomation("a1", action(models.ActionNotifySlack, models.NotifyConfig{Message: "x"})))
	slack := &fakeSlack{}
	eng := newTestEngine(st, &fakeSource{agg: metrics.Aggregate{Spend: 10}}, slack)

	res, err := eng.ExecuteOne(context.Background(), "a1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Triggered || res.Executed {
		t.Fatalf("should not trigger: %+v", res)
	}
	if res.Message != "Trigger conditions not met" {
		t.Fatalf("message %q", res.Message)
	}
	if len(slack.messages) != 0 {
		t.Fatalf("no actions should run when trigger does not fire")
	}
	if _, ok := st.lastRuns["a1"]; !ok {
		t.Fatalf("last run is stamped on every evaluation pass")
	}
	if st.runCounts["a1"] != 0 {
		t.Fatalf("unfired evaluation must not count a run")
	}
}

func TestExecuteOneInactive(t *testing.T) {
	a := spendAutomation("a1", action(models.ActionNotifySlack, models.NotifyConfig{Message: "x"}))
	a.IsActive = false
	st := newFakeStore(a)
	eng := newTestEngine(st, &fakeSource{agg: metrics.Aggregate{Spend: 150}}, &fakeSlack{})

	_, err := eng.ExecuteOne(context.Background(), "a1", nil)
	if !errors.Is(err, ErrAutomationInactive) {
		t.Fatalf("want ErrAutomationInactive, got %v", err)
	}
	if len(st.executions) != 0 {
		t.Fatalf("inactive automation must not leave execution rows")
	}
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	broken := models.Automation{
		ID:          "bad",
		Name:        "broken rule",
		TriggerType: "phase_of_moon",
		IsActive:    true,
	}
	good := spendAutomation("good", action(models.ActionNotifySlack, models.NotifyConfig{Message: "x"}))
	st := newFakeStore(broken, good)
	slack := &fakeSlack{}
	eng := newTestEngine(st, &fakeSource{agg: metrics.Aggregate{Spend: 150}}, slack)

	eng.RunCycle(context.Background())

	if len(st.executions) != 2 {
		t.Fatalf("both automations should record a row, got %d", len(st.executions))
	}
	if !strings.HasPrefix(st.executions[0].Message, "Trigger evaluation failed:") {
		t.Fatalf("broken automation message %q", st.executions[0].Message)
	}
	if len(slack.messages) != 1 {
		t.Fatalf("healthy automation should still run its actions")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	st := newFakeStore()
	eng := newTestEngine(st, &fakeSource{}, &fakeSlack{})

	eng.Start(context.Background())
	eng.Start(context.Background()) // second call is a no-op
	if !eng.Running() {
		t.Fatalf("engine should be running after Start")
	}

	eng.Stop()
	if eng.Running() {
		t.Fatalf("engine should be stopped after Stop")
	}
	eng.Stop() // stopping again is a no-op
}
