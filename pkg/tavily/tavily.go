// Package tavily is a small client for the Tavily web search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.tavily.com"

// ErrMissingAPIKey is returned by Search when no key is configured.
var ErrMissingAPIKey = errors.New("tavily: API key is missing")

type Config struct {
	APIKey  string
	BaseURL string
	// Depth is Tavily's search_depth (basic or advanced).
	Depth string
	// Topic is general or news.
	Topic      string
	MaxResults int
	// MaxRetries bounds the retries on HTTP 429.
	MaxRetries int
	// Backoff is the first delay after a 429; it doubles up to 30s.
	Backoff    time.Duration
	HTTPClient *http.Client
}

// Client calls the Tavily search API.
type Client struct {
	cfg Config
}

// New constructs a client, filling defaults for unset fields.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Depth == "" {
		cfg.Depth = "basic"
	}
	if cfg.Topic == "" {
		cfg.Topic = "general"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg}
}

// Request is a single search. Zero fields take the client defaults.
type Request struct {
	Query      string
	MaxResults int
	Topic      string
}

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

// Search posts a query to Tavily.
func (c *Client) Search(ctx context.Context, r Request) (*Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	query := strings.TrimSpace(r.Query)
	if query == "" {
		return nil, errors.New("tavily: query is required")
	}

	maxResults := r.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	topic := r.Topic
	if topic == "" {
		topic = c.cfg.Topic
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      c.cfg.APIKey,
		"search_depth": c.cfg.Depth,
		"topic":        topic,
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}
	if len(out.Results) > maxResults {
		out.Results = out.Results[:maxResults]
	}
	return &out, nil
}

// post sends the request, backing off and retrying on 429.
func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	delay := c.cfg.Backoff
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.cfg.MaxRetries {
			return resp, nil
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
