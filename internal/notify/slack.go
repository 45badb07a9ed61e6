// Package notify delivers Slack and email notifications for job handlers and
// automation actions.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// SlackSender posts messages to a Slack incoming webhook.
type SlackSender struct {
	client     *resty.Client
	webhookURL string
}

// NewSlackSender builds a webhook client. An empty URL yields a sender that
// fails every delivery, which the retry path then surfaces.
func NewSlackSender(webhookURL string, timeout time.Duration) *SlackSender {
	return &SlackSender{
		client:     resty.New().SetTimeout(timeout),
		webhookURL: webhookURL,
	}
}

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send delivers one message and returns a message id on success.
func (s *SlackSender) Send(ctx context.Context, channel, message string) (string, error) {
	if s.webhookURL == "" {
		return "", fmt.Errorf("slack webhook not configured")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(slackMessage{Channel: channel, Text: message}).
		Post(s.webhookURL)
	if err != nil {
		return "", fmt.Errorf("post slack webhook: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("slack webhook returned %s", resp.Status())
	}
	return "slack_" + uuid.New().String(), nil
}
