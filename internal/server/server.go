// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the pipeline over HTTP: run creation, run
// inspection, selective retry, and a websocket progress stream.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pdiddy/storyboard-engine/internal/credits"
	"github.com/pdiddy/storyboard-engine/internal/pipeline"
	"github.com/pdiddy/storyboard-engine/internal/store"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// Server wires the pipeline coordinator and run store into a gin router.
type Server struct {
	router   *gin.Engine
	coord    *pipeline.Coordinator
	store    *store.Store
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a Server and registers its routes.
func New(coord *pipeline.Coordinator, st *store.Store, hub *Hub) *Server {
	s := &Server{
		router: gin.New(),
		coord:  coord,
		store:  st,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router.Use(gin.Recovery())

	api := s.router.Group("/api")
	api.POST("/runs", s.createRun)
	api.GET("/runs/:id", s.getRun)
	api.POST("/runs/:id/retry", s.retryRun)
	api.GET("/runs/:id/progress", s.streamProgress)

	return s
}

// Router exposes the underlying engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	return s.router.Run(addr)
}

type createRunRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	DocKind   string `json:"doc_kind"`
	Input     string `json:"input" binding:"required"`
}

func (s *Server) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := types.DocumentKind(req.DocKind)
	if kind == "" {
		kind = types.DocStory
	}
	if kind != types.DocStory && kind != types.DocLyrics {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doc_kind must be story or lyrics"})
		return
	}

	runID, err := s.coord.Start(c.Request.Context(), req.ProjectID, req.Input, kind, s.hub.Publish)
	if err != nil {
		if errors.Is(err, credits.ErrNoCredits) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) retryRun(c *gin.Context) {
	run, err := s.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(run.FailedUnits()) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": pipeline.ErrNothingToRetry.Error()})
		return
	}

	// The retry outlives this request.
	retryCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		if err := s.coord.RetryFailed(retryCtx, run, s.hub.Publish); err != nil {
			log.Printf("retry of run %s: %v", run.ID, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// streamProgress upgrades to a websocket and forwards progress updates
// for one run until the run finishes or the client hangs up. A run that
// already finished gets its terminal state as the only message.
func (s *Server) streamProgress(c *gin.Context) {
	runID := c.Param("id")
	if _, err := s.store.Load(c.Request.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := s.hub.Subscribe(runID)
	defer cancel()

	// A hung-up client is only visible from the read side; cancelling
	// closes the subscription channel and unblocks the write loop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	// Re-check after subscribing. A run that finished before the
	// subscription existed will never publish again, so its stored
	// terminal state is the stream.
	run, err := s.store.Load(c.Request.Context(), runID)
	if err != nil {
		return
	}
	if run.Status == types.RunComplete || run.Status == types.RunFailed {
		_ = conn.WriteJSON(terminalUpdate(run))
		return
	}

	for u := range updates {
		if err := conn.WriteJSON(u); err != nil {
			return
		}
		if u.Status == types.RunComplete || u.Status == types.RunFailed {
			return
		}
	}
}

// terminalUpdate renders a stored terminal run as its final progress
// event, mirroring what the coordinator emits on completion.
func terminalUpdate(run *types.PipelineRun) types.ProgressUpdate {
	current, total := len(run.Units), len(run.Units)
	if run.Status == types.RunFailed {
		current, total = 0, 0
	}
	return types.ProgressUpdate{
		RunID:   run.ID,
		Current: current,
		Total:   total,
		Stage:   string(run.Status),
		Status:  run.Status,
	}
}
