package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campaign-automation/internal/automation"
	"campaign-automation/internal/models"
	"campaign-automation/internal/platform"
)

type fakeSlackSender struct {
	channel string
	message string
}

func (f *fakeSlackSender) Send(_ context.Context, channel, message string) (string, error) {
	f.channel, f.message = channel, message
	return "msg-1", nil
}

type fakeAnalytics struct {
	rows          []models.AnalyticsPayload
	deletedBefore time.Time
	syncs         int
}

func (f *fakeAnalytics) InsertAnalyticsRow(_ context.Context, p models.AnalyticsPayload) error {
	f.rows = append(f.rows, p)
	return nil
}

func (f *fakeAnalytics) DeleteAnalyticsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deletedBefore = cutoff
	return 7, nil
}

func (f *fakeAnalytics) InsertSyncHistory(context.Context, []string, int, int, json.RawMessage) error {
	f.syncs++
	return nil
}

type fakeRetention struct{ cutoff time.Time }

func (f *fakeRetention) DeleteTerminalJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

type fakePlatform struct {
	snap platform.Snapshot
	err  error
}

func (f *fakePlatform) FetchSnapshot(context.Context, string) (platform.Snapshot, error) {
	return f.snap, f.err
}

type fakeRunner struct {
	id  string
	res automation.ExecResult
	err error
}

func (f *fakeRunner) ExecuteOne(_ context.Context, id string, _ json.RawMessage) (automation.ExecResult, error) {
	f.id = id
	return f.res, f.err
}

func jobWith(typ string, payload any) models.Job {
	raw, _ := json.Marshal(payload)
	return models.Job{ID: "j1", Type: typ, Payload: raw, MaxAttempts: 3}
}

func TestHandleSendSlack(t *testing.T) {
	slack := &fakeSlackSender{}
	h := &Handlers{Slack: slack, Now: fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))}

	raw, err := h.HandleSendSlack(context.Background(), jobWith(models.JobSendSlack, models.SlackPayload{Channel: "#ops", Message: "hi"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if slack.channel != "#ops" || slack.message != "hi" {
		t.Fatalf("sent %q to %q", slack.message, slack.channel)
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result: %v", err)
	}
	if result["messageId"] != "msg-1" {
		t.Fatalf("result %v", result)
	}
}

func TestHandleSyncWithoutSettingsIsPermanent(t *testing.T) {
	h := &Handlers{Platform: &fakePlatform{}, Analytics: &fakeAnalytics{}, Now: time.Now}

	_, err := h.HandleSyncPlatformData(context.Background(), jobWith(models.JobSyncPlatformData, models.SyncPayload{}))
	if err == nil {
		t.Fatalf("missing settings should fail")
	}
	if !IsPermanent(err) {
		t.Fatalf("missing settings is not retryable: %v", err)
	}
}

func TestHandleSyncFetchErrorIsTransient(t *testing.T) {
	h := &Handlers{
		Platform:  &fakePlatform{err: errors.New("502")},
		Analytics: &fakeAnalytics{},
		Now:       time.Now,
	}
	_, err := h.HandleSyncPlatformData(context.Background(), jobWith(models.JobSyncPlatformData, models.SyncPayload{Settings: "{}"}))
	if err == nil || IsPermanent(err) {
		t.Fatalf("fetch failure should be retryable, got %v", err)
	}
}

func TestHandleExecuteAutomation(t *testing.T) {
	runner := &fakeRunner{res: automation.ExecResult{Triggered: true, Executed: true, Message: "Executed 1/1 actions successfully"}}
	h := &Handlers{Engine: runner, Now: time.Now}

	raw, err := h.HandleExecuteAutomation(context.Background(), jobWith(models.JobExecuteAutomation, models.AutomationPayload{AutomationID: "a1"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if runner.id != "a1" {
		t.Fatalf("ran automation %q", runner.id)
	}
	var result map[string]any
	_ = json.Unmarshal(raw, &result)
	if result["triggered"] != true || result["executed"] != true {
		t.Fatalf("result %v", result)
	}
}

func TestHandleExecuteAutomationMissingID(t *testing.T) {
	h := &Handlers{Engine: &fakeRunner{}, Now: time.Now}
	_, err := h.HandleExecuteAutomation(context.Background(), jobWith(models.JobExecuteAutomation, models.AutomationPayload{}))
	if !IsPermanent(err) {
		t.Fatalf("missing automation id should be permanent, got %v", err)
	}
}

func TestHandleExecuteAutomationInactiveIsPermanent(t *testing.T) {
	h := &Handlers{Engine: &fakeRunner{err: automation.ErrAutomationInactive}, Now: time.Now}
	_, err := h.HandleExecuteAutomation(context.Background(), jobWith(models.JobExecuteAutomation, models.AutomationPayload{AutomationID: "a1"}))
	if !IsPermanent(err) {
		t.Fatalf("inactive automation should not be retried, got %v", err)
	}
}

func TestHandleCleanupUsesDefaultRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	jobs := &fakeRetention{}
	analytics := &fakeAnalytics{}
	h := &Handlers{Jobs: jobs, Analytics: analytics, RetentionDays: 90, Now: fixedClock(now)}

	raw, err := h.HandleCleanupData(context.Background(), jobWith(models.JobCleanupData, models.CleanupPayload{}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := now.AddDate(0, 0, -90)
	if !jobs.cutoff.Equal(want) {
		t.Fatalf("jobs cutoff %s, want %s", jobs.cutoff, want)
	}
	if !analytics.deletedBefore.Equal(want) {
		t.Fatalf("analytics cutoff %s, want %s", analytics.deletedBefore, want)
	}
	var result map[string]any
	_ = json.Unmarshal(raw, &result)
	if result["jobsDeleted"] != float64(3) || result["rowsDeleted"] != float64(7) {
		t.Fatalf("result %v", result)
	}
}

func TestHandleCleanupHonorsPayloadDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	jobs := &fakeRetention{}
	h := &Handlers{Jobs: jobs, Analytics: &fakeAnalytics{}, RetentionDays: 90, Now: fixedClock(now)}

	if _, err := h.HandleCleanupData(context.Background(), jobWith(models.JobCleanupData, models.CleanupPayload{Days: 30})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if want := now.AddDate(0, 0, -30); !jobs.cutoff.Equal(want) {
		t.Fatalf("cutoff %s, want %s", jobs.cutoff, want)
	}
}
