package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// EmailSender delivers email through an HTTP email API (Resend-style).
type EmailSender struct {
	client *resty.Client
	apiURL string
	from   string
}

// NewEmailSender builds the API client.
func NewEmailSender(apiURL, apiKey, from string, timeout time.Duration) *EmailSender {
	client := resty.New().SetTimeout(timeout)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &EmailSender{client: client, apiURL: apiURL, from: from}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// Send delivers one email and returns the provider's message id.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if s.apiURL == "" {
		return "", fmt.Errorf("email API not configured")
	}
	if to == "" {
		return "", fmt.Errorf("email recipient is empty")
	}
	var out emailResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(emailRequest{From: s.from, To: to, Subject: subject, Body: body}).
		SetResult(&out).
		Post(s.apiURL)
	if err != nil {
		return "", fmt.Errorf("post email API: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("email API returned %s", resp.Status())
	}
	return out.ID, nil
}
