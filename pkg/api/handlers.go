package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/odvcencio/webrunner/pkg/engine"
	"github.com/odvcencio/webrunner/pkg/screenshot"
	"github.com/odvcencio/webrunner/pkg/storage"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine and storage sentinels onto HTTP statuses.
// Not-found has two sources: the engine's own sentinel and the storage
// layer's, depending on which component surfaced the miss.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, storage.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrSessionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	WebsiteURL string `json:"website_url"`
	Prompt     string `json:"prompt"`

	// Start immediately instead of waiting for an explicit start call.
	Start bool `json:"start,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.WebsiteURL = strings.TrimSpace(req.WebsiteURL)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.WebsiteURL == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "website_url and prompt are required")
		return
	}

	p, err := s.planner.Plan(req.WebsiteURL, req.Prompt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "planning failed: "+err.Error())
		return
	}

	session, err := s.engine.CreateSession(r.Context(), req.WebsiteURL, req.Prompt, *p)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if req.Start {
		if err := s.engine.Start(r.Context(), session.ID); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.store.DeleteSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)

	sessions, total, err := s.store.ListSessions(r.Context(), page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Start(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"status":     "running",
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.engine.Stop(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"session_id": id,
			"status":     "cancelling",
		})
		return
	}

	// Distinguish an unknown session from one that is not running.
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeError(w, http.StatusConflict, "session is not running: "+id)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.engine.Metrics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleSessionScreenshots(w http.ResponseWriter, r *http.Request) {
	refs, err := s.engine.Screenshots(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if refs == nil {
		refs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"screenshots": refs})
}

func (s *Server) handleScreenshotFile(w http.ResponseWriter, r *http.Request) {
	ref := screenshot.RefPrefix + r.PathValue("name")
	path, ok := s.shots.Path(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "screenshot not found")
		return
	}
	http.ServeFile(w, r, path)
}

// AnalyzeRequest is the request body for website analysis.
type AnalyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SessionStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statistics":        stats,
		"active_executions": s.engine.ActiveCount(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
