// Package mockserver implements a local stand-in for the Execution
// Service: a checkpointed conversation graph with branch forking, SSE run
// streaming and websocket state notifications. It exists for development
// and for exercising the client end to end; its assistant replies are
// canned, not model-generated.
package mockserver

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// Server is the mock Execution Service.
type Server struct {
	store      *Store
	assistants []domain.Assistant

	mu       sync.Mutex
	runs     map[string]chan struct{}          // thread_id -> cancel
	watchers map[string]map[*websocket.Conn]bool // thread_id -> conns

	upgrader websocket.Upgrader
}

// NewServer creates a mock server over the given store.
func NewServer(store *Store) *Server {
	return &Server{
		store: store,
		assistants: []domain.Assistant{
			{AssistantID: "agent", Name: "Agent", GraphID: "agent"},
			{AssistantID: "deep-agent", Name: "Deep Agent", GraphID: "deep-agent"},
		},
		runs:     make(map[string]chan struct{}),
		watchers: make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// NewEcho builds an echo server with all routes registered.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	s.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers all routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/threads", s.ListThreads)
	e.DELETE("/v1/threads/:thread_id", s.DeleteThread)
	e.GET("/v1/assistants", s.ListAssistants)

	e.GET("/v1/threads/:thread_id/state", s.GetState)
	e.POST("/v1/threads/:thread_id/branch", s.SetBranch)
	e.POST("/v1/threads/:thread_id/runs/stream", s.StreamRun)
	e.POST("/v1/threads/:thread_id/runs/cancel", s.CancelRun)
	e.GET("/v1/threads/:thread_id/ws", s.WatchThread)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
}

// ListThreads returns threads sorted per the query params.
// GET /v1/threads
func (s *Server) ListThreads(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	threads, err := s.store.ListThreads(limit, c.QueryParam("sort_by"), c.QueryParam("sort_order"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": threads})
}

// DeleteThread removes a thread.
// DELETE /v1/threads/:thread_id
func (s *Server) DeleteThread(c echo.Context) error {
	if err := s.store.DeleteThread(c.Param("thread_id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAssistants returns the seeded assistants.
// GET /v1/assistants
func (s *Server) ListAssistants(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"assistants": s.assistants})
}

// GetState returns the full state of the thread's active branch.
// GET /v1/threads/:thread_id/state
func (s *Server) GetState(c echo.Context) error {
	threadID := c.Param("thread_id")
	state, err := s.threadState(threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "thread not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, state)
}

// SetBranch switches the active branch and returns its wholesale state.
// POST /v1/threads/:thread_id/branch
func (s *Server) SetBranch(c echo.Context) error {
	threadID := c.Param("thread_id")
	var req struct {
		Branch string `json:"branch"`
	}
	if err := c.Bind(&req); err != nil || req.Branch == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "branch is required"})
	}
	if err := s.store.SetActiveBranch(threadID, req.Branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "thread not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	state, err := s.threadState(threadID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	s.notifyWatchers(threadID)
	return c.JSON(http.StatusOK, state)
}

// CancelRun aborts the in-flight run for the thread, keeping whatever
// partial output already streamed.
// POST /v1/threads/:thread_id/runs/cancel
func (s *Server) CancelRun(c echo.Context) error {
	threadID := c.Param("thread_id")
	s.mu.Lock()
	cancel, ok := s.runs[threadID]
	if ok {
		delete(s.runs, threadID)
	}
	s.mu.Unlock()
	if ok {
		close(cancel)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// WatchThread upgrades to a websocket and pushes refresh notifications
// until the client disconnects.
// GET /v1/threads/:thread_id/ws
func (s *Server) WatchThread(c echo.Context) error {
	threadID := c.Param("thread_id")
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.watchers[threadID] == nil {
		s.watchers[threadID] = make(map[*websocket.Conn]bool)
	}
	s.watchers[threadID][conn] = true
	s.mu.Unlock()

	// Block reading until the peer goes away; watchers only receive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.watchers[threadID], conn)
	s.mu.Unlock()
	conn.Close()
	return nil
}

// notifyWatchers tells every watcher of the thread to re-hydrate.
func (s *Server) notifyWatchers(threadID string) {
	event := domain.WatchEvent{Type: domain.WatchEventRefresh, ThreadID: threadID}
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.watchers[threadID]))
	for conn := range s.watchers[threadID] {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("mockserver: dropping watcher for %s: %v", threadID, err)
		}
	}
}

// threadState assembles the ThreadState of the active branch, including
// per-message checkpoint metadata with sibling branch options.
func (s *Server) threadState(threadID string) (*domain.ThreadState, error) {
	_, branch, err := s.store.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.BranchMessages(threadID, branch)
	if err != nil {
		return nil, err
	}

	state := &domain.ThreadState{
		ThreadID: threadID,
		Messages: make([]domain.Message, 0, len(msgs)),
		Metadata: make(map[string]domain.CheckpointMetadata, len(msgs)),
	}
	for _, sm := range msgs {
		options, err := s.store.SiblingBranches(threadID, sm)
		if err != nil {
			return nil, err
		}
		state.Messages = append(state.Messages, sm.Message)
		state.Metadata[sm.Message.ID] = domain.CheckpointMetadata{
			Checkpoint:       sm.Checkpoint,
			ParentCheckpoint: sm.ParentCheckpoint,
			Branch:           sm.Branch,
			BranchOptions:    options,
		}
	}
	return state, nil
}
