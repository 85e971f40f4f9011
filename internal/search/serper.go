// Package search queries a web search provider for live context.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the Serper Google search endpoint.
const DefaultURL = "https://google.serper.dev/search"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("web search is not configured")

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []Result `json:"organic"`
}

// SerperClient calls the Serper search API.
type SerperClient struct {
	URL    string
	APIKey string
	client *http.Client
}

// NewSerperClient creates a Serper client. An empty url selects DefaultURL.
func NewSerperClient(url, apiKey string) *SerperClient {
	if url == "" {
		url = DefaultURL
	}
	return &SerperClient{
		URL:    url,
		APIKey: apiKey,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// Configured reports whether the client has an API key.
func (c *SerperClient) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Search returns the organic results for q in ranking order.
func (c *SerperClient) Search(ctx context.Context, q string) ([]Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(serperRequest{Q: q})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var out serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return out.Organic, nil
}
