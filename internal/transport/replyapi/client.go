// Package replyapi is the HTTP client for the email-writer REST API that
// produces reply drafts.
package replyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/replyguard/internal/domain"
	"github.com/kailas-cloud/replyguard/internal/domain/reply"
	"github.com/kailas-cloud/replyguard/internal/version"
)

const (
	// RequestIDHeader carries the per-call correlation ID.
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 1 << 20
	maxErrorBytes    = 1024

	healthPath = "/api/email/test"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", domain.ErrUpstream.Error(), e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return domain.ErrUpstream }

// Client talks to the reply generation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newID      func() string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient = &http.Client{Timeout: d} }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Subject      string `json:"subject"`
	EmailContent string `json:"emailContent"`
	Tone         string `json:"tone,omitempty"`
	Language     string `json:"language,omitempty"`
}

// Generate posts the request to /api/email/{mode} and returns the response
// body as received. bearer is forwarded when non-empty.
func (c *Client) Generate(ctx context.Context, mode reply.Mode, req reply.Request, bearer string) (json.RawMessage, error) {
	body, err := json.Marshal(generateRequest{
		Subject:      req.Subject,
		EmailContent: req.EmailContent,
		Tone:         req.Tone,
		Language:     req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/email/"+string(mode), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.decorate(httpReq, bearer)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrUpstream, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: response is not valid JSON", domain.ErrUpstream)
	}
	return raw, nil
}

// HealthCheck calls the unauthenticated connectivity endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.decorate(httpReq, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return checkStatus(resp)
}

func (c *Client) decorate(r *http.Request, bearer string) {
	r.Header.Set(RequestIDHeader, c.newID())
	r.Header.Set("User-Agent", version.String())
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
