// Package quotes proxies a third-party quote API
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultURL     = "https://zenquotes.io/api/quotes"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

var ErrInvalidPayload = errors.New("quote service returned invalid JSON")

// Client fetches quotes from an upstream HTTP endpoint
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a quote client. Empty url and non-positive timeout fall
// back to the defaults.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the upstream JSON payload unchanged
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quote service error: %s", resp.Status)
	}
	if !json.Valid(body) {
		return nil, ErrInvalidPayload
	}
	return body, nil
}
