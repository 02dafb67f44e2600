package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/civicdesk/civicdesk/internal/logger"
	"github.com/civicdesk/civicdesk/internal/models"
)

const sendTimeout = 5 * time.Second

// Client posts events to one external collaborator as JSON
// The response body is ignored on success
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  l,
	}
}

func (c *Client) Send(ctx context.Context, event models.DispatchEvent) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Event delivery rejected", "status_code", resp.StatusCode, "event_type", event.EventType)
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return nil
}
