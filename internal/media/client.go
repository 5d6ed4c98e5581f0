// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package media submits still-frame render jobs to a hosted media
// provider and polls them to completion. Submission returns a job
// handle; results arrive asynchronously.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/storyboard-engine/internal/httputil"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

const (
	// DefaultPollInterval and DefaultMaxPolls bound how long a render job
	// is watched before it is declared timed out.
	DefaultPollInterval = 1 * time.Second
	DefaultMaxPolls     = 30

	// DefaultHTTPTimeout bounds one HTTP exchange when the config leaves
	// Timeout unset.
	DefaultHTTPTimeout = 30 * time.Second
)

// Job states reported by the provider.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

var (
	// ErrJobFailed is returned when the provider reports a terminal
	// failure for a job.
	ErrJobFailed = errors.New("media job failed")

	// ErrTimedOut is returned when a job is still running after the
	// polling budget is spent.
	ErrTimedOut = errors.New("media job timed out")
)

// Client talks to the media provider over HTTP JSON.
type Client struct {
	cfg  types.MediaConfig
	http *http.Client
}

// NewClient returns a Client for the configured provider endpoint.
func NewClient(cfg types.MediaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type submitRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Submit starts a render job and returns its handle. The job runs
// asynchronously; use Poll to wait for the result.
func (c *Client) Submit(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Width:  c.cfg.Width,
		Height: c.cfg.Height,
	})
	if err != nil {
		return "", fmt.Errorf("encoding submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	c.decorate(req)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return "", fmt.Errorf("submitting media job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("submitting media job: unexpected status %d", resp.StatusCode)
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("submit response carried no job id")
	}
	return job.ID, nil
}

// Poll watches a job until it reaches a terminal state, checking at the
// configured interval. Returns the asset URL on success, ErrJobFailed on
// a provider failure, and ErrTimedOut when the polling budget runs out
// with the job still in flight.
func (c *Client) Poll(ctx context.Context, jobID string) (string, error) {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxPolls := c.cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	for i := 0; i < maxPolls; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(interval):
			}
		}

		job, err := c.fetch(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch job.Status {
		case StatusSucceeded:
			return job.URL, nil
		case StatusFailed:
			if job.Error != "" {
				return "", fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
			}
			return "", ErrJobFailed
		case StatusQueued, StatusProcessing:
			// Still running, keep polling.
		default:
			return "", fmt.Errorf("unknown media job status %q", job.Status)
		}
	}
	return "", fmt.Errorf("job %s: %w", jobID, ErrTimedOut)
}

// GenerateStill submits a render and waits for the asset URL.
func (c *Client) GenerateStill(ctx context.Context, prompt string) (string, error) {
	jobID, err := c.Submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	return c.Poll(ctx, jobID)
}

func (c *Client) fetch(ctx context.Context, jobID string) (jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return jobResponse{}, err
	}
	c.decorate(req)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return jobResponse{}, fmt.Errorf("polling media job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobResponse{}, fmt.Errorf("polling media job %s: unexpected status %d", jobID, resp.StatusCode)
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return jobResponse{}, fmt.Errorf("decoding job status: %w", err)
	}
	return job, nil
}

// decorate applies the configured credentials and identification
// headers to one provider request.
func (c *Client) decorate(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
}
