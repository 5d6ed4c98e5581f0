// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/storyboard-engine/internal/pipeline"
	"github.com/pdiddy/storyboard-engine/internal/store"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, _ string, _ types.DocumentKind) (*types.ReferenceSet, error) {
	return types.NewReferenceSet(), nil
}

type stubSegmenter struct{ n int }

func (s stubSegmenter) Segment(_ context.Context, doc string, _ types.DocumentKind) ([]types.NarrativeUnit, error) {
	units := make([]types.NarrativeUnit, s.n)
	for i := range units {
		units[i] = types.NarrativeUnit{
			ID:      fmt.Sprintf("unit-%03d", i+1),
			Ordinal: i,
			Span:    types.Span{Start: i * len(doc) / s.n, End: (i + 1) * len(doc) / s.n},
		}
	}
	return units, nil
}

type stubGenerator struct{ fail bool }

func (g stubGenerator) Generate(_ context.Context, unit types.NarrativeUnit, _ string, _ *types.ReferenceSet) (types.UnitBreakdown, error) {
	if g.fail {
		return types.UnitBreakdown{}, errors.New("generator down")
	}
	return types.UnitBreakdown{
		UnitID: unit.ID,
		Shots:  []types.Shot{{Description: "a shot"}},
	}, nil
}

type denyReserver struct{}

func (denyReserver) CheckAndReserve(_ context.Context, _ string, _ int) (bool, error) {
	return false, nil
}

func newTestServer(t *testing.T, gen pipeline.Generator, opts types.PipelineOptions) (*Server, *store.Store, *Hub) {
	t.Helper()
	st, err := store.NewStore(types.StoreConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := NewHub()
	deps := pipeline.Deps{
		Extractor: stubExtractor{},
		Segmenter: stubSegmenter{n: 2},
		Generator: gen,
		Store:     st,
	}
	if opts.GenerateStills {
		deps.Reserver = denyReserver{}
	}
	coord := pipeline.New(deps, opts)
	return New(coord, st, hub), st, hub
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func waitForStatus(t *testing.T, st *store.Store, runID string, want types.RunStatus) *types.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := st.Load(context.Background(), runID)
		if err == nil && run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", runID, want)
	return nil
}

func TestCreateRunAndGet(t *testing.T) {
	s, st, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})

	w := postJSON(t, s, "/api/runs", gin.H{
		"project_id": "proj-1",
		"doc_kind":   "story",
		"input":      "John walked into the warehouse. Sarah followed him in.",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	run := waitForStatus(t, st, resp.RunID, types.RunComplete)
	assert.Len(t, run.Breakdowns, 2)

	get := httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.RunID, nil)
	got := httptest.NewRecorder()
	s.Router().ServeHTTP(got, get)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), resp.RunID)
}

func TestCreateRunValidation(t *testing.T) {
	s, _, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})

	w := postJSON(t, s, "/api/runs", gin.H{"project_id": "proj-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, s, "/api/runs", gin.H{
		"project_id": "proj-1",
		"doc_kind":   "screenplay",
		"input":      "text",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRunNoCredits(t *testing.T) {
	opts := types.PipelineOptions{GenerateStills: true, StillCost: 1}
	s, _, _ := newTestServer(t, stubGenerator{}, opts)

	w := postJSON(t, s, "/api/runs", gin.H{
		"project_id": "broke-project",
		"input":      "some story text",
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestGetRunNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryConflictsWhenNothingFailed(t *testing.T) {
	s, st, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})

	w := postJSON(t, s, "/api/runs", gin.H{
		"project_id": "proj-1",
		"input":      "a story that succeeds",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	waitForStatus(t, st, resp.RunID, types.RunComplete)

	retry := postJSON(t, s, "/api/runs/"+resp.RunID+"/retry", gin.H{})
	assert.Equal(t, http.StatusConflict, retry.Code)
}

func TestRetryRegeneratesFailedUnits(t *testing.T) {
	s, st, _ := newTestServer(t, stubGenerator{fail: true}, types.PipelineOptions{})

	w := postJSON(t, s, "/api/runs", gin.H{
		"project_id": "proj-1",
		"input":      "a story that fails generation",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	run := waitForStatus(t, st, resp.RunID, types.RunComplete)
	require.Len(t, run.FailedUnits(), 2)

	retry := postJSON(t, s, "/api/runs/"+resp.RunID+"/retry", gin.H{})
	assert.Equal(t, http.StatusAccepted, retry.Code)
}

func saveRun(t *testing.T, st *store.Store, id string, status types.RunStatus, units int) {
	t.Helper()
	run := &types.PipelineRun{
		ID:        id,
		ProjectID: "proj-1",
		DocKind:   types.DocStory,
		Input:     "stored input",
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for i := 0; i < units; i++ {
		run.Units = append(run.Units, types.NarrativeUnit{ID: fmt.Sprintf("unit-%03d", i+1), Ordinal: i})
	}
	require.NoError(t, st.Save(context.Background(), run))
}

func TestProgressWebsocket(t *testing.T) {
	s, st, hub := newTestServer(t, stubGenerator{}, types.PipelineOptions{})
	saveRun(t, st, "run-ws", types.RunGenerating, 2)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/runs/run-ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription.
	require.Eventually(t, func() bool {
		hub.Publish(types.ProgressUpdate{
			RunID: "run-ws", Current: 1, Total: 2,
			Stage: "generating-units", Status: types.RunGenerating,
		})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var u types.ProgressUpdate
		return conn.ReadJSON(&u) == nil && u.Current == 1
	}, 2*time.Second, 50*time.Millisecond)

	hub.Publish(types.ProgressUpdate{
		RunID: "run-ws", Current: 2, Total: 2,
		Stage: "complete", Status: types.RunComplete,
	})

	// Drain any queued intermediate updates until the terminal one.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var final types.ProgressUpdate
	for i := 0; i < subscriberBuffer; i++ {
		require.NoError(t, conn.ReadJSON(&final))
		if final.Status == types.RunComplete {
			break
		}
	}
	assert.Equal(t, types.RunComplete, final.Status)
	assert.Equal(t, final.Total, final.Current)
}

func TestProgressWebsocketFinishedRun(t *testing.T) {
	s, st, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})
	saveRun(t, st, "run-done", types.RunComplete, 3)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/runs/run-done/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// No further publishes will ever happen for this run; the stream
	// must still deliver its terminal state instead of hanging.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var u types.ProgressUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, types.RunComplete, u.Status)
	assert.Equal(t, 3, u.Total)
	assert.Equal(t, u.Total, u.Current)
}

func TestProgressWebsocketUnknownRun(t *testing.T) {
	s, _, _ := newTestServer(t, stubGenerator{}, types.PipelineOptions{})

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/runs/nope/progress"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubNonBlockingPublish(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("run-1")
	defer cancel()

	// Overfill the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(types.ProgressUpdate{RunID: "run-1", Current: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The buffered updates are still readable in order.
	first := <-ch
	assert.Equal(t, 0, first.Current)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("run-1")
	cancel()
	cancel()

	// Publishing to a run with no subscribers is a no-op.
	hub.Publish(types.ProgressUpdate{RunID: "run-1"})
}
