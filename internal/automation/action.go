package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campaign-automation/internal/models"
	"campaign-automation/internal/report"
	"campaign-automation/internal/store"
)

// Collaborator interfaces consumed by the executor. store.Store and the
// notify/report packages satisfy them.

type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (store.Campaign, error)
	SetCampaignStatus(ctx context.Context, id, status string) error
	AdjustCampaignBudget(ctx context.Context, id string, value float64, mode string) (float64, error)
}

type SlackSender interface {
	Send(ctx context.Context, channel, message string) (string, error)
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type ReportRunner interface {
	Generate(ctx context.Context, dateRange *models.DateRange, sections []string, userID string) (report.Data, error)
}

type ReviewStore interface {
	FlagForReview(ctx context.Context, automationID, campaignID, reason string) error
}

// Executor runs an automation's ordered action list. Actions execute
// sequentially; a failing action does not stop the ones after it.
type Executor struct {
	log       *logrus.Logger
	campaigns CampaignStore
	slack     SlackSender
	email     EmailSender
	reports   ReportRunner
	reviews   ReviewStore
	timeout   time.Duration
}

// NewExecutor wires the executor's collaborators. timeout bounds each
// individual action call.
func NewExecutor(log *logrus.Logger, campaigns CampaignStore, slack SlackSender, email EmailSender, reports ReportRunner, reviews ReviewStore, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		log:       log,
		campaigns: campaigns,
		slack:     slack,
		email:     email,
		reports:   reports,
		reviews:   reviews,
		timeout:   timeout,
	}
}

// ActionResult records one action's outcome.
type ActionResult struct {
	Type  string
	Error error
}

// Run executes every action in declared order and returns per-action results.
func (x *Executor) Run(ctx context.Context, a models.Automation, eval Evaluation) []ActionResult {
	results := make([]ActionResult, 0, len(a.Actions))
	for _, action := range a.Actions {
		actionCtx, cancel := context.WithTimeout(ctx, x.timeout)
		err := x.runOne(actionCtx, a, action, eval)
		cancel()
		if err != nil {
			x.log.WithFields(logrus.Fields{
				"automation": a.ID,
				"action":     action.Type,
			}).WithError(err).Warn("automation action failed")
		}
		results = append(results, ActionResult{Type: action.Type, Error: err})
	}
	return results
}

func (x *Executor) runOne(ctx context.Context, a models.Automation, action models.Action, eval Evaluation) error {
	switch action.Type {
	case models.ActionPauseCampaign:
		var cfg models.PauseCampaignConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		id := firstNonEmpty(cfg.CampaignID, eval.CampaignID)
		if id == "" {
			return fmt.Errorf("pause_campaign: no campaign id")
		}
		return x.campaigns.SetCampaignStatus(ctx, id, "paused")

	case models.ActionAdjustBudget:
		var cfg models.AdjustBudgetConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		id := firstNonEmpty(cfg.CampaignID, eval.CampaignID)
		if id == "" {
			return fmt.Errorf("adjust_budget: no campaign id")
		}
		_, err := x.campaigns.AdjustCampaignBudget(ctx, id, cfg.Value, cfg.Mode)
		return err

	case models.ActionNotifySlack, models.ActionSendAlert:
		var cfg models.NotifyConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		msg := x.renderMessage(ctx, cfg.Message, a, eval)
		_, err := x.slack.Send(ctx, cfg.Channel, msg)
		return err

	case models.ActionSendEmail:
		var cfg models.EmailActionConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		body := x.renderMessage(ctx, cfg.Body, a, eval)
		_, err := x.email.Send(ctx, cfg.To, cfg.Subject, body)
		return err

	case models.ActionGenerateReport:
		var cfg models.ReportActionConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		_, err := x.reports.Generate(ctx, nil, cfg.Sections, cfg.UserID)
		return err

	case models.ActionEscalateReview:
		var cfg models.EscalateConfig
		if err := models.DecodeConfig(action.Config, &cfg); err != nil {
			return err
		}
		reason := cfg.Reason
		if reason == "" {
			reason = fmt.Sprintf("flagged by automation %q", a.Name)
		}
		return x.reviews.FlagForReview(ctx, a.ID, firstNonEmpty(cfg.CampaignID, eval.CampaignID), reason)

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// renderMessage substitutes {campaign_name}, {roas}, and {spend} placeholders
// from the trigger context.
func (x *Executor) renderMessage(ctx context.Context, msg string, a models.Automation, eval Evaluation) string {
	if msg == "" {
		msg = fmt.Sprintf("Automation %q triggered", a.Name)
	}
	if strings.Contains(msg, "{campaign_name}") {
		name := eval.CampaignID
		if eval.CampaignID != "" {
			if c, err := x.campaigns.GetCampaign(ctx, eval.CampaignID); err == nil {
				name = c.Name
			}
		}
		msg = strings.ReplaceAll(msg, "{campaign_name}", name)
	}
	msg = strings.ReplaceAll(msg, "{roas}", strconv.FormatFloat(eval.Metrics.ROAS, 'f', 2, 64))
	msg = strings.ReplaceAll(msg, "{spend}", strconv.FormatFloat(eval.Metrics.Spend, 'f', 2, 64))
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
