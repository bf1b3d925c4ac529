// Package upstream is the HTTP client for the OpenAI Assistants API that
// the proxy forwards to and the run-step collector reads from.
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultBetaHeader = "assistants=v1"
	DefaultTimeout    = 60 * time.Second

	defaultContentType = "application/octet-stream"
)

// Client talks to the upstream API. Credentials and base URL may be swapped
// at runtime with Reconfigure.
type Client struct {
	mu         sync.RWMutex
	apiKey     string
	baseURL    string
	betaHeader string

	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent upstream.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithBaseURL sets the upstream base URL, including the version prefix.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithBetaHeader sets the OpenAI-Beta header value.
func WithBetaHeader(value string) Option {
	return func(c *Client) {
		c.betaHeader = value
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New creates an upstream client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		betaHeader: DefaultBetaHeader,
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer("github.com/tjfontaine/threadlog-gateway/internal/upstream"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   c.timeout,
		}
	}

	return c
}

// Reconfigure swaps the API key and base URL. An empty base URL restores the
// default.
func (c *Client) Reconfigure(apiKey, baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiKey = apiKey
	c.baseURL = strings.TrimRight(baseURL, "/")
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
}

// BaseURL returns the current upstream base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Response is a raw upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the upstream call succeeded.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends method to path with an optional JSON body. Upstream error statuses
// are returned as a Response, not an error; only transport failures error.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	c.mu.RLock()
	apiKey, baseURL, beta := c.apiKey, c.baseURL, c.betaHeader
	c.mu.RUnlock()

	ctx, span := c.tracer.Start(ctx, "upstream "+method,
		trace.WithAttributes(
			attribute.String("upstream.method", method),
			attribute.String("upstream.path", path),
		),
	)
	defer span.End()

	var reader io.Reader
	if len(body) > 0 && method != http.MethodGet && method != http.MethodDelete {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if beta != "" {
		httpReq.Header.Set("OpenAI-Beta", beta)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	span.SetAttributes(attribute.Int("upstream.status", resp.StatusCode))
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// FileContent downloads a file and wraps it as an artifact record.
func (c *Client) FileContent(ctx context.Context, fileID string) (*domain.ArtifactRecord, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, domain.ErrorFromStatus(resp.StatusCode, resp.Body)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &domain.ArtifactRecord{
		FileID:      fileID,
		ContentType: contentType,
		Payload:     base64.StdEncoding.EncodeToString(resp.Body),
		Size:        int64(len(resp.Body)),
		CreatedAt:   time.Now(),
	}, nil
}
