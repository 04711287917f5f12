package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

const perfChartPath = "/perfChartData/{thread}/"

// ClientConfig represents backend client configuration.
type ClientConfig struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	Debug   bool
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Client is the HTTP client for the perfChartData endpoint.
type Client struct {
	client  *resty.Client
	baseURL string
}

// NewClient creates a backend client. Retries are handled by the Fetcher, so
// resty's own retry stays disabled.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig("http://127.0.0.1:40120")
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	if cfg.Debug {
		c.SetDebug(true)
	}
	return &Client{client: c, baseURL: cfg.BaseURL}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchRaw performs the GET and returns the raw success body. Failure bodies are
// turned into *BackendAPIError or *HTTPError.
func (c *Client) FetchRaw(ctx context.Context, thread types.ThreadName) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("thread", string(thread)).
		Get(perfChartPath)
	if err != nil {
		return nil, fmt.Errorf("perf chart request for %s: %w", thread, err)
	}
	body := resp.Body()

	var fail types.FailResponse
	// Failure envelopes may come with any status code.
	if len(body) > 0 && json.Unmarshal(body, &fail) == nil && fail.FailReason != "" {
		return nil, &BackendAPIError{Code: fail.FailReason, StatusCode: resp.StatusCode()}
	}
	if resp.IsError() {
		msg := fail.Error
		if msg == "" {
			msg = string(body)
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: msg}
	}
	if fail.Error != "" {
		return nil, fmt.Errorf("perf chart request for %s: %s", thread, fail.Error)
	}
	if resp.StatusCode() == http.StatusNoContent || len(body) == 0 {
		return nil, fmt.Errorf("perf chart request for %s: empty response", thread)
	}
	return body, nil
}

// FetchPerfChart fetches and decodes the chart data of one thread.
func (c *Client) FetchPerfChart(ctx context.Context, thread types.ThreadName) (*types.PerfChartData, error) {
	raw, err := c.FetchRaw(ctx, thread)
	if err != nil {
		return nil, err
	}
	return DecodePerfChartData(raw)
}

// DecodePerfChartData parses a success body and validates its boundaries.
func DecodePerfChartData(raw []byte) (*types.PerfChartData, error) {
	var d types.PerfChartData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode perf chart data: %w", err)
	}
	if err := d.Boundaries.Validate(); err != nil {
		return nil, fmt.Errorf("decode perf chart data: %w", err)
	}
	return &d, nil
}
