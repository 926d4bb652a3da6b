// Package client provides a Go SDK for the job queue admin API.
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
	"time"
)

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("not found")

// Client communicates with the queue API server.
type Client struct {
	baseURL    string
	actor      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithActor sets the actor recorded on audited calls.
func WithActor(actor string) Option {
	return func(c *Client) { c.actor = actor }
}

// New creates a new queue API client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnqueueJobRequest is the request body for creating a job.
type EnqueueJobRequest struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	ScheduledAt    *time.Time      `json:"scheduledAt,omitempty"`
	MaxAttempts    int             `json:"maxAttempts,omitempty"`
	TTLSeconds     int             `json:"ttlSeconds,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
}

// EnqueueResponse reports whether the job was persisted. JobID is set
// even when Success is false.
type EnqueueResponse struct {
	Success     bool      `json:"success"`
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// JobResponse is the API response for a job.
type JobResponse struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	State          string          `json:"state"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
	ScheduledAt    time.Time       `json:"scheduledAt"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	TTLSeconds     int             `json:"ttlSeconds"`
	OrganizationID string          `json:"organizationId,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// StatsResponse is a queue snapshot.
type StatsResponse struct {
	Pending        int64 `json:"pending"`
	Processing     int64 `json:"processing"`
	Dead           int64 `json:"dead"`
	TotalProcessed int64 `json:"totalProcessed"`
	TotalFailed    int64 `json:"totalFailed"`
}

// EventResponse is an audit event recorded by the API.
type EventResponse struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	JobID          string    `json:"jobId"`
	JobType        string    `json:"jobType,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ProcessResponse summarizes a processing batch.
type ProcessResponse struct {
	Processed   int      `json:"processed"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	MovedToDead int      `json:"movedToDead"`
	Errors      []string `json:"errors"`
}

// EnqueueJob submits a new job. A response with Success false means the
// server accepted the request but could not persist the job.
func (c *Client) EnqueueJob(ctx context.Context, req *EnqueueJobRequest) (*EnqueueResponse, error) {
	var out EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob retrieves a job by its ID. A missing job returns ErrNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*JobResponse, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStats returns the current queue snapshot.
func (c *Client) GetStats(ctx context.Context) (*StatsResponse, error) {
	var out StatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue/stats", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeadJobs returns dead jobs, newest first. A limit of zero uses the
// server default.
func (c *Client) ListDeadJobs(ctx context.Context, limit int) ([]*JobResponse, error) {
	path := "/api/v1/queue/dead"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out []*JobResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns recent audit events, newest first. A limit of zero
// uses the server default.
func (c *Client) ListEvents(ctx context.Context, limit int) ([]*EventResponse, error) {
	path := "/api/v1/queue/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out []*EventResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetryDeadJob moves a dead job back to pending. A job that is not in the
// dead set returns ErrNotFound.
func (c *Client) RetryDeadJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/queue/dead/"+url.PathEscape(id)+"/retry", nil, http.StatusOK, nil)
}

// ProcessQueue runs one processing batch on the server. A batch size of
// zero uses the server default.
func (c *Client) ProcessQueue(ctx context.Context, batchSize int) (*ProcessResponse, error) {
	path := "/api/v1/queue/process"
	if batchSize > 0 {
		path += "?batchSize=" + strconv.Itoa(batchSize)
	}

	var out ProcessResponse
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		httpReq.Header.Set("X-Actor", c.actor)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode != wantStatus {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
