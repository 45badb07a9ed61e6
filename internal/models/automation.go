package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Trigger types understood by the evaluator.
const (
	TriggerSpendLimit      = "spend_limit"
	TriggerRoasDrop        = "roas_drop"
	TriggerConversionsLow  = "conversions_low"
	TriggerTimeBased       = "time_based"
	TriggerMetricThreshold = "metric_threshold"
	TriggerEvent           = "event"
)

// Action types understood by the executor.
const (
	ActionPauseCampaign  = "pause_campaign"
	ActionAdjustBudget   = "adjust_budget"
	ActionNotifySlack    = "notify_slack"
	ActionSendAlert      = "send_alert"
	ActionSendEmail      = "send_email"
	ActionGenerateReport = "generate_report"
	ActionEscalateReview = "escalate_review"
)

// Comparison operators for metric_threshold triggers.
const (
	OpBelow  = "below"
	OpAbove  = "above"
	OpEquals = "equals"
)

// Rolling comparison periods. An empty period means daily.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Automation is a persisted trigger-to-actions rule.
type Automation struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	TriggerType   string          `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	Actions       []Action        `json:"actions"`
	IsActive      bool            `json:"is_active"`
	LastRun       *time.Time      `json:"last_run,omitempty"`
	RunCount      int64           `json:"run_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Action is one step of an automation's ordered pipeline.
type Action struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Typed trigger configs, one per trigger type.

type SpendLimitConfig struct {
	CampaignID string  `json:"campaign_id,omitempty"`
	Limit      float64 `json:"limit"`
	Period     string  `json:"period,omitempty"`
}

type RoasDropConfig struct {
	CampaignID string  `json:"campaign_id,omitempty"`
	Threshold  float64 `json:"threshold"`
	Period     string  `json:"period,omitempty"`
}

type ConversionsLowConfig struct {
	CampaignID string  `json:"campaign_id,omitempty"`
	Threshold  float64 `json:"threshold"`
	Period     string  `json:"period,omitempty"`
}

// TimeBasedConfig lists HH:MM-HH:MM windows; a window whose start is after
// its end spans midnight.
type TimeBasedConfig struct {
	Windows []string `json:"windows"`
}

type MetricThresholdConfig struct {
	CampaignID string  `json:"campaign_id,omitempty"`
	Metric     string  `json:"metric"`
	Operator   string  `json:"operator"`
	Value      float64 `json:"value"`
}

// EventConfig names the event an event trigger matches. Empty matches any.
type EventConfig struct {
	Event string `json:"event,omitempty"`
}

// Typed action configs.

type PauseCampaignConfig struct {
	CampaignID string `json:"campaign_id"`
}

type AdjustBudgetConfig struct {
	CampaignID string  `json:"campaign_id"`
	Value      float64 `json:"value"`
	Mode       string  `json:"mode"` // fixed | percentage
}

type NotifyConfig struct {
	Channel   string `json:"channel,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message"`
}

type EmailActionConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type ReportActionConfig struct {
	Sections []string `json:"sections,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
}

type EscalateConfig struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// DecodeConfig unmarshals a raw trigger or action config into its typed form.
func DecodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// AutomationExecution is one immutable audit row per evaluation pass.
type AutomationExecution struct {
	ID           int64           `json:"id,omitempty"`
	AutomationID string          `json:"automation_id"`
	Triggered    bool            `json:"triggered"`
	Executed     bool            `json:"executed"`
	Message      string          `json:"message"`
	TriggerData  json.RawMessage `json:"trigger_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
