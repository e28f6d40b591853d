// Package api provides the REST and streaming HTTP surface for test
// sessions: planning, execution control, results, and live event streams.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/webrunner/pkg/analyze"
	"github.com/odvcencio/webrunner/pkg/engine"
	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/plan"
	"github.com/odvcencio/webrunner/pkg/storage"
)

// Engine drives session execution. Implemented by engine.Orchestrator.
type Engine interface {
	CreateSession(ctx context.Context, websiteURL, prompt string, p plan.ActionPlan) (*plan.Session, error)
	Start(ctx context.Context, id string) error
	Stop(id string) bool
	Status(ctx context.Context, id string) (*engine.Progress, error)
	Result(ctx context.Context, id string) (*plan.ExecutionResult, error)
	Metrics(ctx context.Context, id string) (*plan.TestMetrics, error)
	Screenshots(ctx context.Context, id string) ([]string, error)
	ActiveCount() int
}

// Planner expands prompts into action plans. Implemented by planner.Planner.
type Planner interface {
	Plan(websiteURL, prompt string) (*plan.ActionPlan, error)
}

// Analyzer inspects websites. Implemented by analyze.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*analyze.Analysis, error)
}

// SessionStore is the read side of session persistence the API serves from.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*plan.Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	ListSessions(ctx context.Context, page, perPage int) ([]plan.Session, int, error)
	SessionStatistics(ctx context.Context) (*storage.Statistics, error)
	AddObserver(storage.Observer)
}

// ScreenshotResolver maps screenshot refs to files on disk.
type ScreenshotResolver interface {
	Path(ref string) (string, bool)
}

// Server is the webrunner API server.
type Server struct {
	engine     Engine
	planner    Planner
	analyzer   Analyzer
	store      SessionStore
	shots      ScreenshotResolver
	logger     *logging.Logger
	hub        *streamHub
	httpServer *http.Server
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Address to listen on (default: :8080)
	Address string

	Engine      Engine
	Planner     Planner
	Analyzer    Analyzer
	Store       SessionStore
	Screenshots ScreenshotResolver
	Logger      *logging.Logger
}

// NewServer creates a new API server and wires its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}

	s := &Server{
		engine:   cfg.Engine,
		planner:  cfg.Planner,
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		shots:    cfg.Screenshots,
		logger:   cfg.Logger,
		hub:      newStreamHub(),
	}
	if s.store != nil {
		s.store.AddObserver(storage.ObserverFunc(s.hub.broadcast))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      withCORS(s.withLogging(s.routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long for streaming
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Session lifecycle
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/start", s.handleStartSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/stop", s.handleStopSession)

	// Session introspection
	mux.HandleFunc("GET /api/v1/sessions/{id}/status", s.handleSessionStatus)
	mux.HandleFunc("GET /api/v1/sessions/{id}/result", s.handleSessionResult)
	mux.HandleFunc("GET /api/v1/sessions/{id}/metrics", s.handleSessionMetrics)
	mux.HandleFunc("GET /api/v1/sessions/{id}/screenshots", s.handleSessionScreenshots)

	// Supporting endpoints
	mux.HandleFunc("POST /api/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/v1/statistics", s.handleStatistics)
	mux.HandleFunc("GET /screenshots/{name}", s.handleScreenshotFile)

	// Live event streams
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)
	mux.HandleFunc("GET /api/v1/ws", s.handleWebSocket)

	return mux
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil || s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "engine or store not initialized",
		})
		return
	}
	if _, _, err := s.store.ListSessions(r.Context(), 1, 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "storage unavailable: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(logging.CategoryAPI, "http_request", "", r.Method+" "+r.URL.Path,
			map[string]any{
				"remote_addr": r.RemoteAddr,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
