// Package client talks to the foldboard HTTP API. It backs the admin CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/domain/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// ErrDuplicate is returned by Submit when the server already knows the submission id.
var ErrDuplicate = errors.New("duplicate submission")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s: %s: %s", e.Status, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client wraps http.Client with the API's base URL.
type Client struct {
	base    *url.URL
	http    *http.Client
	backoff func() retry.Backoff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithBackoff sets the retry policy of idempotent reads.
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) { c.backoff = fn }
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts an intake event. A duplicate returns the original receipt and ErrDuplicate.
func (c *Client) Submit(ctx context.Context, in service.Intake) (service.Receipt, error) {
	var out service.Receipt
	err := c.do(ctx, http.MethodPost, "/submissions", in, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return out, fmt.Errorf("%w: %s", ErrDuplicate, out.SubmissionID)
	}
	return out, err
}

// Result returns the raw metadata document of a token.
func (c *Client) Result(ctx context.Context, token string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/results/"+url.PathEscape(token), &out)
	return out, err
}

// Leaderboard returns a session leaderboard.
func (c *Client) Leaderboard(ctx context.Context, session string) (model.Leaderboard, error) {
	var out model.Leaderboard
	err := c.get(ctx, "/leaderboard/"+url.PathEscape(session), &out)
	return out, err
}

// Sessions lists the catalog sessions.
func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var out []model.Session
	err := c.get(ctx, "/sessions", &out)
	return out, err
}

// Problems lists public problems, optionally of one session.
func (c *Client) Problems(ctx context.Context, session string) ([]model.Problem, error) {
	path := "/problems"
	if session != "" {
		path += "?session=" + url.QueryEscape(session)
	}
	var out []model.Problem
	err := c.get(ctx, path, &out)
	return out, err
}

// Stats is the answer of GET /stats.
type Stats struct {
	Jobs        map[model.JobState]int `json:"jobs"`
	Total       int                    `json:"total"`
	SubmitQueue int                    `json:"submit_queue"`
}

// Stats returns job counts by state.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.get(ctx, "/stats", &out)
	return out, err
}

// Reevaluate asks the server to score a submission again.
func (c *Client) Reevaluate(ctx context.Context, req service.ReevaluateRequest) (service.ReevaluateReport, error) {
	var out service.ReevaluateReport
	err := c.do(ctx, http.MethodPost, "/admin/reevaluate", req, &out)
	return out, err
}

// RunPass runs one orchestration pass on the server.
func (c *Client) RunPass(ctx context.Context, name string) (service.Report, error) {
	var out service.Report
	err := c.do(ctx, http.MethodPost, "/admin/passes/"+url.PathEscape(name), nil, &out)
	return out, err
}

// Health checks liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// get retries network errors and 5xx answers.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return err
		}
		if err != nil && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		// a conflict still carries the original receipt
		if resp.StatusCode == http.StatusConflict && out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
