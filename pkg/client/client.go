// Package client is a Go client for the contactbox HTTP API.
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
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Config configures a Client.
type Config struct {
	BaseURL string // e.g. http://localhost:8080
	APIKey  string // admin key; optional for Submit and Health
	Timeout time.Duration
}

// Client calls the contactbox API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// APIError is a problem+json response from the server.
type APIError struct {
	StatusCode int
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors"`
	RetryAfter int          `json:"retry_after"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("contactbox: %d %s: %s", e.StatusCode, e.Title, e.Detail)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a 429 and returns the advised wait.
func IsRateLimited(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return time.Duration(apiErr.RetryAfter) * time.Second, true
	}
	return 0, false
}

// ListOptions narrows a List call. Zero values use server defaults.
type ListOptions struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

// Submit posts a contact-form entry and returns its id.
func (c *Client) Submit(ctx context.Context, name, email, message string) (int64, error) {
	var out types.CreatedResponse
	err := c.do(ctx, http.MethodPost, "/api/submissions", types.RawSubmission{
		Name: name, Email: email, Message: message,
	}, &out)
	return out.ID, err
}

// List returns one page of submissions.
func (c *Client) List(ctx context.Context, opts ListOptions) (*types.ListResult, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Priority != "" {
		q.Set("priority", opts.Priority)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/submissions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out types.ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one submission.
func (c *Client) Get(ctx context.Context, id int64) (*types.Submission, error) {
	var out types.Submission
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/submissions/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial update and returns the updated submission.
func (c *Client) Update(ctx context.Context, id int64, patch types.SubmissionPatch) (*types.Submission, error) {
	var out types.Submission
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/submissions/%d", id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one submission.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/submissions/%d", id), nil, nil)
}

// Bulk applies action ("delete" or a status) to ids and returns the affected count.
func (c *Client) Bulk(ctx context.Context, ids []int64, action string) (int64, error) {
	var out types.BulkResult
	err := c.do(ctx, http.MethodPost, "/api/submissions/bulk", types.BulkRequest{IDs: ids, Action: action}, &out)
	return out.Affected, err
}

// Export streams the CSV export into w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/submissions/export", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Analytics returns the aggregate summary.
func (c *Client) Analytics(ctx context.Context) (*types.AnalyticsSummary, error) {
	var out types.AnalyticsSummary
	if err := c.do(ctx, http.MethodGet, "/api/analytics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/system/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends a JSON request and unwraps the {success, data} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(env.Data, out)
}

// send performs the request and converts non-2xx responses to *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Title == "" {
		apiErr.Title = http.StatusText(resp.StatusCode)
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return nil, apiErr
}
