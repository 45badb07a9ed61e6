// Package platform fetches current campaign and lead data from the platform
// data service.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Snapshot is one pull of campaign/lead data across connected platforms.
type Snapshot struct {
	Campaigns []json.RawMessage `json:"campaigns"`
	Leads     []json.RawMessage `json:"leads"`
	Platforms []string          `json:"platforms"`
	Raw       json.RawMessage   `json:"-"`
}

// Client talks to the platform data endpoint, passing the caller's settings
// blob through a header the way the dashboard's sync path does.
type Client struct {
	client  *resty.Client
	dataURL string
}

// NewClient builds the HTTP client.
func NewClient(dataURL string, timeout time.Duration) *Client {
	return &Client{
		client:  resty.New().SetTimeout(timeout),
		dataURL: dataURL,
	}
}

// FetchSnapshot pulls current platform data keyed by the settings blob.
func (c *Client) FetchSnapshot(ctx context.Context, settings string) (Snapshot, error) {
	if c.dataURL == "" {
		return Snapshot{}, fmt.Errorf("platform data URL not configured")
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("x-user-settings", settings).
		Get(c.dataURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch platform data: %w", err)
	}
	if resp.IsError() {
		return Snapshot{}, fmt.Errorf("platform data service returned %s", resp.Status())
	}

	var snap Snapshot
	if err := json.Unmarshal(resp.Body(), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode platform data: %w", err)
	}
	snap.Raw = json.RawMessage(resp.Body())
	return snap, nil
}
