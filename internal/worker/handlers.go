package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campaign-automation/internal/automation"
	"campaign-automation/internal/models"
	"campaign-automation/internal/platform"
	"campaign-automation/internal/report"
)

// Collaborator interfaces consumed by the job handlers.

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type SlackSender interface {
	Send(ctx context.Context, channel, message string) (string, error)
}

type AnalyticsStore interface {
	InsertAnalyticsRow(ctx context.Context, p models.AnalyticsPayload) error
	DeleteAnalyticsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	InsertSyncHistory(ctx context.Context, platforms []string, campaigns, leads int, data json.RawMessage) error
}

type JobRetention interface {
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PlatformFetcher interface {
	FetchSnapshot(ctx context.Context, settings string) (platform.Snapshot, error)
}

type ReportRunner interface {
	Generate(ctx context.Context, dateRange *models.DateRange, sections []string, userID string) (report.Data, error)
}

type AutomationRunner interface {
	ExecuteOne(ctx context.Context, id string, triggerData json.RawMessage) (automation.ExecResult, error)
}

// Handlers bundles the per-type job handlers and their collaborators.
type Handlers struct {
	Log       *logrus.Logger
	Email     EmailSender
	Slack     SlackSender
	Analytics AnalyticsStore
	Jobs      JobRetention
	Platform  PlatformFetcher
	Reports   ReportRunner
	Engine    AutomationRunner

	// RetentionDays is the default cleanup window when the payload omits one.
	RetentionDays int
	Now           func() time.Time
}

// Register binds every job type to its handler.
func (h *Handlers) Register(p *Processor) {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.RetentionDays <= 0 {
		h.RetentionDays = 90
	}
	p.RegisterHandler(models.JobSendEmail, h.HandleSendEmail)
	p.RegisterHandler(models.JobSendSlack, h.HandleSendSlack)
	p.RegisterHandler(models.JobUpdateAnalytics, h.HandleUpdateAnalytics)
	p.RegisterHandler(models.JobSyncPlatformData, h.HandleSyncPlatformData)
	p.RegisterHandler(models.JobGenerateReport, h.HandleGenerateReport)
	p.RegisterHandler(models.JobExecuteAutomation, h.HandleExecuteAutomation)
	p.RegisterHandler(models.JobCleanupData, h.HandleCleanupData)
}

func (h *Handlers) HandleSendEmail(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.EmailPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	messageID, err := h.Email.Send(ctx, p.To, p.Subject, p.Body)
	if err != nil {
		return nil, fmt.Errorf("email sending failed: %w", err)
	}
	return marshalResult(map[string]any{
		"messageId": messageID,
		"recipient": p.To,
		"sentAt":    h.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleSendSlack(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.SlackPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	messageID, err := h.Slack.Send(ctx, p.Channel, p.Message)
	if err != nil {
		return nil, fmt.Errorf("slack notification failed: %w", err)
	}
	return marshalResult(map[string]any{
		"messageId": messageID,
		"channel":   p.Channel,
		"sentAt":    h.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleUpdateAnalytics(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.AnalyticsPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	if err := h.Analytics.InsertAnalyticsRow(ctx, p); err != nil {
		return nil, fmt.Errorf("analytics update failed: %w", err)
	}
	return marshalResult(map[string]any{
		"platform":    p.Platform,
		"processedAt": h.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleSyncPlatformData(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.SyncPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	if p.Settings == "" {
		return nil, Permanentf("no integration settings found")
	}

	snap, err := h.Platform.FetchSnapshot(ctx, p.Settings)
	if err != nil {
		return nil, fmt.Errorf("platform sync failed: %w", err)
	}
	if err := h.Analytics.InsertSyncHistory(ctx, snap.Platforms, len(snap.Campaigns), len(snap.Leads), snap.Raw); err != nil {
		return nil, fmt.Errorf("store sync history: %w", err)
	}
	return marshalResult(map[string]any{
		"platforms": snap.Platforms,
		"campaigns": len(snap.Campaigns),
		"leads":     len(snap.Leads),
		"syncedAt":  h.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleGenerateReport(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.ReportPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	data, err := h.Reports.Generate(ctx, p.DateRange, p.Sections, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}
	return json.Marshal(data)
}

func (h *Handlers) HandleExecuteAutomation(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.AutomationPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	if p.AutomationID == "" {
		return nil, Permanentf("automation id is required")
	}
	res, err := h.Engine.ExecuteOne(ctx, p.AutomationID, p.TriggerData)
	if err == automation.ErrAutomationInactive {
		return nil, Permanent(err)
	}
	if err != nil {
		return nil, fmt.Errorf("automation execution failed: %w", err)
	}
	return marshalResult(map[string]any{
		"automationId": p.AutomationID,
		"triggered":    res.Triggered,
		"executed":     res.Executed,
		"message":      res.Message,
	})
}

func (h *Handlers) HandleCleanupData(ctx context.Context, job models.Job) (json.RawMessage, error) {
	var p models.CleanupPayload
	if err := models.DecodePayload(job, &p); err != nil {
		return nil, Permanent(err)
	}
	days := p.Days
	if days <= 0 {
		days = h.RetentionDays
	}
	cutoff := h.Now().UTC().AddDate(0, 0, -days)

	jobsDeleted, err := h.Jobs.DeleteTerminalJobsBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup failed: %w", err)
	}
	rowsDeleted, err := h.Analytics.DeleteAnalyticsBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup failed: %w", err)
	}
	if h.Log != nil {
		h.Log.WithFields(logrus.Fields{
			"jobs_deleted": jobsDeleted,
			"rows_deleted": rowsDeleted,
			"cutoff":       cutoff.Format(time.RFC3339),
		}).Info("retention cleanup completed")
	}
	return marshalResult(map[string]any{
		"cutoffDate":  cutoff.Format(time.RFC3339),
		"jobsDeleted": jobsDeleted,
		"rowsDeleted": rowsDeleted,
		"cleanedAt":   h.Now().UTC().Format(time.RFC3339),
	})
}

func marshalResult(v map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return raw, nil
}
