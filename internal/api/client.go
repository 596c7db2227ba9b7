// Package api is the client for the message-store API: the monitor
// PUTs its own health there and POSTs every extracted message record.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wellsight/mailwatch/internal/extract"
)

// Status is the external-facing health record. Timestamps are epoch
// milliseconds; optional fields are omitted when unset.
type Status struct {
	IsRunning       bool   `json:"isRunning"`
	LastError       string `json:"lastError,omitempty"`
	EmailsProcessed string `json:"emailsProcessed,omitempty"`
	LastStarted     int64  `json:"lastStarted,omitempty"`
	LastStopped     int64  `json:"lastStopped,omitempty"`
}

// Client talks to the message-store API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given API base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PutStatus reports monitor health. Delivery is best-effort from the
// monitor's point of view: callers log the returned error and move on.
func (c *Client) PutStatus(ctx context.Context, status Status) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/monitor/status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put status: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PostMessage hands a record off to the message sink. Only HTTP 201 is
// success; any other outcome is a hand-off failure and the caller must
// not advance the cursor.
func (c *Client) PostMessage(ctx context.Context, rec *extract.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post message uid %s: %w", rec.UID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post message uid %s: status %d - %s",
			rec.UID, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
