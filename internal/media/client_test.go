// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

func testClient(baseURL string) *Client {
	return NewClient(types.MediaConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Model:        "still-v1",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
	})
}

func writeJob(t *testing.T, w http.ResponseWriter, job jobResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(job))
}

func TestSubmitReturnsJobHandle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "still-v1", req.Model)
		assert.Equal(t, "a misty pier at dawn", req.Prompt)

		w.WriteHeader(http.StatusAccepted)
		writeJob(t, w, jobResponse{ID: "job-42", Status: StatusQueued})
	}))
	defer ts.Close()

	id, err := testClient(ts.URL).Submit(context.Background(), "a misty pier at dawn")
	require.NoError(t, err)
	assert.Equal(t, "job-42", id)
}

func TestClientHonorsHTTPConfig(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "storyboard-engine/0.1", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusAccepted)
		writeJob(t, w, jobResponse{ID: "job-9", Status: StatusQueued})
	}))
	defer ts.Close()

	c := NewClient(types.MediaConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "storyboard-engine/0.1"},
		BaseURL:    ts.URL,
	})
	assert.Equal(t, 5*time.Second, c.http.Timeout)

	_, err := c.Submit(context.Background(), "anything")
	require.NoError(t, err)

	// Unset timeout falls back to the default.
	assert.Equal(t, DefaultHTTPTimeout, NewClient(types.MediaConfig{}).http.Timeout)
}

func TestPollSucceedsAfterProcessing(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs/job-42", r.URL.Path)
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			writeJob(t, w, jobResponse{ID: "job-42", Status: StatusQueued})
		case 2:
			writeJob(t, w, jobResponse{ID: "job-42", Status: StatusProcessing})
		default:
			writeJob(t, w, jobResponse{ID: "job-42", Status: StatusSucceeded, URL: "https://cdn.example/still.png"})
		}
	}))
	defer ts.Close()

	url, err := testClient(ts.URL).Poll(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/still.png", url)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestPollFailedJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJob(t, w, jobResponse{ID: "job-42", Status: StatusFailed, Error: "nsfw filter"})
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).Poll(context.Background(), "job-42")
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "nsfw filter")
}

func TestPollTimesOut(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&polls, 1)
		writeJob(t, w, jobResponse{ID: "job-42", Status: StatusProcessing})
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).Poll(context.Background(), "job-42")
	require.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, int32(5), atomic.LoadInt32(&polls))
}

func TestPollContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJob(t, w, jobResponse{ID: "job-42", Status: StatusQueued})
	}))
	defer ts.Close()

	c := NewClient(types.MediaConfig{
		BaseURL:      ts.URL,
		PollInterval: time.Second,
		MaxPolls:     30,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Poll(ctx, "job-42")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateStillEndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			writeJob(t, w, jobResponse{ID: "job-7", Status: StatusQueued})
			return
		}
		writeJob(t, w, jobResponse{ID: "job-7", Status: StatusSucceeded, URL: "https://cdn.example/7.png"})
	}))
	defer ts.Close()

	url, err := testClient(ts.URL).GenerateStill(context.Background(), "neon alley")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/7.png", url)
}

func TestSubmitRejectsMissingJobID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJob(t, w, jobResponse{Status: StatusQueued})
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).Submit(context.Background(), "anything")
	require.Error(t, err)
}
