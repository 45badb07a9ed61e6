package models

import (
	"encoding/json"
	"fmt"
)

// Typed payloads for each job type. Producers marshal these; handlers decode
// with DecodePayload so every handler works on a statically-shaped struct
// instead of a map.

type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type SlackPayload struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

type AnalyticsPayload struct {
	Platform    string  `json:"platform"`
	CampaignID  string  `json:"campaign_id,omitempty"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Conversions int64   `json:"conversions"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Leads       int64   `json:"leads"`
}

type SyncPayload struct {
	// Settings is the caller-supplied integration blob forwarded to the
	// platform data service. Its absence is a permanent failure.
	Settings string `json:"settings"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ReportPayload struct {
	DateRange *DateRange `json:"date_range,omitempty"`
	Sections  []string   `json:"sections,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
}

type AutomationPayload struct {
	AutomationID string          `json:"automation_id"`
	TriggerData  json.RawMessage `json:"trigger_data,omitempty"`
}

type CleanupPayload struct {
	Days int `json:"days,omitempty"`
}

// DecodePayload unmarshals a job payload into the handler's typed struct.
// A nil payload decodes to the zero value.
func DecodePayload(job Job, dst any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Type, err)
	}
	return nil
}
