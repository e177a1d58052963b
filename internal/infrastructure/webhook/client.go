package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/notify"
	"FuelPriceMonitor/internal/ports"
)

// Client posts run summaries as JSON to an HTTP endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

var _ ports.Sink = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.WebhookConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "webhook" }

type payload struct {
	domain.RunReportSummary
	Text string `json:"text"`
}

// Deliver posts the summary together with its plain-text rendering.
func (c *Client) Deliver(ctx context.Context, summary domain.RunReportSummary) error {
	if c.endpoint == "" {
		return fmt.Errorf("webhook client misconfigured")
	}

	body, err := json.Marshal(payload{RunReportSummary: summary, Text: notify.RenderText(summary)})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
