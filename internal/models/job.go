package models

import (
	"encoding/json"
	"time"
)

// Job lifecycle states persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job types dispatched by the queue processor.
const (
	JobSendEmail         = "send_email"
	JobSendSlack         = "send_slack"
	JobUpdateAnalytics   = "update_analytics"
	JobSyncPlatformData  = "sync_platform_data"
	JobGenerateReport    = "generate_report"
	JobExecuteAutomation = "execute_automation"
	JobCleanupData       = "cleanup_data"
)

// Job represents a unit of deferred work persisted in Postgres.
// Payload is stored raw; each handler decodes it into its own typed struct.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	DelayUntil   time.Time       `json:"delay_until"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// Terminal reports whether the job is in a state the retention cleanup may delete.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

var jobTypes = map[string]struct{}{
	JobSendEmail:         {},
	JobSendSlack:         {},
	JobUpdateAnalytics:   {},
	JobSyncPlatformData:  {},
	JobGenerateReport:    {},
	JobExecuteAutomation: {},
	JobCleanupData:       {},
}

// ValidJobType reports whether t names a known job type.
func ValidJobType(t string) bool {
	_, ok := jobTypes[t]
	return ok
}
