package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/webrunner/pkg/analyze"
	"github.com/odvcencio/webrunner/pkg/engine"
	"github.com/odvcencio/webrunner/pkg/plan"
	"github.com/odvcencio/webrunner/pkg/storage"
)

// Mock implementations

type mockEngine struct {
	sessions map[string]*plan.Session
	startErr error
	stopped  map[string]bool
	running  map[string]bool
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		sessions: make(map[string]*plan.Session),
		stopped:  make(map[string]bool),
		running:  make(map[string]bool),
	}
}

func (m *mockEngine) CreateSession(_ context.Context, websiteURL, prompt string, p plan.ActionPlan) (*plan.Session, error) {
	session := &plan.Session{
		ID:         fmt.Sprintf("sess-%d", len(m.sessions)+1),
		WebsiteURL: websiteURL,
		Prompt:     prompt,
		Plan:       p,
		Status:     plan.SessionPending,
		CreatedAt:  time.Now().UTC(),
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *mockEngine) Start(_ context.Context, id string) error {
	if m.startErr != nil {
		return m.startErr
	}
	if _, ok := m.sessions[id]; !ok {
		return engine.ErrNotFound
	}
	m.running[id] = true
	return nil
}

func (m *mockEngine) Stop(id string) bool {
	if m.running[id] {
		m.stopped[id] = true
		return true
	}
	return false
}

func (m *mockEngine) Status(_ context.Context, id string) (*engine.Progress, error) {
	if _, ok := m.sessions[id]; !ok {
		return nil, engine.ErrNotFound
	}
	return &engine.Progress{Status: plan.SessionRunning, Progress: 50}, nil
}

func (m *mockEngine) Result(_ context.Context, id string) (*plan.ExecutionResult, error) {
	if _, ok := m.sessions[id]; !ok {
		return nil, engine.ErrNotFound
	}
	return &plan.ExecutionResult{SessionID: id, Status: plan.SessionCompleted, SuccessRate: 1}, nil
}

func (m *mockEngine) Metrics(_ context.Context, id string) (*plan.TestMetrics, error) {
	if _, ok := m.sessions[id]; !ok {
		return nil, engine.ErrNotFound
	}
	return &plan.TestMetrics{SessionID: id, PerformanceScore: 100}, nil
}

func (m *mockEngine) Screenshots(_ context.Context, id string) ([]string, error) {
	if _, ok := m.sessions[id]; !ok {
		return nil, engine.ErrNotFound
	}
	return nil, nil
}

func (m *mockEngine) ActiveCount() int { return len(m.running) }

type mockPlanner struct {
	err error
}

func (m *mockPlanner) Plan(websiteURL, prompt string) (*plan.ActionPlan, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &plan.ActionPlan{
		ID:         "plan-1",
		WebsiteURL: websiteURL,
		Actions: []plan.Action{
			plan.NewAction(plan.ActionNavigate, "Navigate to "+websiteURL, websiteURL, ""),
		},
		RiskLevel: plan.RiskLow,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type mockAnalyzer struct {
	err error
}

func (m *mockAnalyzer) Analyze(_ context.Context, url string) (*analyze.Analysis, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &analyze.Analysis{URL: url, Title: "Example", HasSearch: true}, nil
}

type mockStore struct {
	engine    *mockEngine
	observers []storage.Observer
}

func (m *mockStore) GetSession(_ context.Context, id string) (*plan.Session, error) {
	if session, ok := m.engine.sessions[id]; ok {
		return session, nil
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
}

func (m *mockStore) DeleteSession(_ context.Context, id string) (bool, error) {
	if _, ok := m.engine.sessions[id]; !ok {
		return false, nil
	}
	delete(m.engine.sessions, id)
	return true, nil
}

func (m *mockStore) ListSessions(_ context.Context, page, perPage int) ([]plan.Session, int, error) {
	sessions := []plan.Session{}
	for _, s := range m.engine.sessions {
		sessions = append(sessions, *s)
	}
	return sessions, len(sessions), nil
}

func (m *mockStore) SessionStatistics(_ context.Context) (*storage.Statistics, error) {
	return &storage.Statistics{TotalSessions: len(m.engine.sessions)}, nil
}

func (m *mockStore) AddObserver(o storage.Observer) {
	m.observers = append(m.observers, o)
}

type mockShots struct {
	files map[string]string
}

func (m *mockShots) Path(ref string) (string, bool) {
	path, ok := m.files[ref]
	return path, ok
}

type testServer struct {
	server *Server
	engine *mockEngine
	store  *mockStore
	shots  *mockShots
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	eng := newMockEngine()
	store := &mockStore{engine: eng}
	shots := &mockShots{files: map[string]string{}}
	srv := NewServer(ServerConfig{
		Engine:      eng,
		Planner:     &mockPlanner{},
		Analyzer:    &mockAnalyzer{},
		Store:       store,
		Screenshots: shots,
	})
	return &testServer{server: srv, engine: eng, store: store, shots: shots}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/sessions", CreateSessionRequest{
		WebsiteURL: "https://example.com",
		Prompt:     "log in",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var session plan.Session
	decodeBody(t, rec, &session)
	if session.ID == "" || session.Status != plan.SessionPending {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(session.Plan.Actions) == 0 {
		t.Fatal("expected a planned action")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/sessions", CreateSessionRequest{Prompt: "log in"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	ts.server.httpServer.Handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec2.Code)
	}
}

func TestCreateSessionWithImmediateStart(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/sessions", CreateSessionRequest{
		WebsiteURL: "https://example.com",
		Prompt:     "log in",
		Start:      true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var session plan.Session
	decodeBody(t, rec, &session)
	if !ts.engine.running[session.ID] {
		t.Fatal("expected session to be started")
	}
}

func TestStartSessionErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	session, _ := ts.engine.CreateSession(context.Background(), "https://example.com", "x", plan.ActionPlan{})

	cases := []struct {
		name     string
		id       string
		startErr error
		want     int
	}{
		{"ok", session.ID, nil, http.StatusAccepted},
		{"unknown", "missing", nil, http.StatusNotFound},
		{"conflict", session.ID, engine.ErrSessionConflict, http.StatusConflict},
		{"busy", session.ID, engine.ErrBusy, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts.engine.startErr = tc.startErr
			rec := ts.do(t, "POST", "/api/v1/sessions/"+tc.id+"/start", nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStopSession(t *testing.T) {
	ts := newTestServer(t)
	session, _ := ts.engine.CreateSession(context.Background(), "https://example.com", "x", plan.ActionPlan{})

	// Not running yet: conflict.
	rec := ts.do(t, "POST", "/api/v1/sessions/"+session.ID+"/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for idle session, got %d", rec.Code)
	}

	// Unknown session: not found.
	rec = ts.do(t, "POST", "/api/v1/sessions/missing/stop", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	// Running: accepted.
	ts.engine.running[session.ID] = true
	rec = ts.do(t, "POST", "/api/v1/sessions/"+session.ID+"/stop", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !ts.engine.stopped[session.ID] {
		t.Fatal("expected stop to reach the engine")
	}
}

func TestGetSessionNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSessionIntrospectionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	session, _ := ts.engine.CreateSession(context.Background(), "https://example.com", "x", plan.ActionPlan{})

	for _, path := range []string{"", "/status", "/result", "/metrics", "/screenshots"} {
		rec := ts.do(t, "GET", "/api/v1/sessions/"+session.ID+path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %q, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	rec := ts.do(t, "GET", "/api/v1/sessions/"+session.ID+"/screenshots", nil)
	var body map[string]any
	decodeBody(t, rec, &body)
	if _, ok := body["screenshots"]; !ok {
		t.Fatalf("expected screenshots key, got %v", body)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	ts := newTestServer(t)
	session, _ := ts.engine.CreateSession(context.Background(), "https://example.com", "x", plan.ActionPlan{})

	rec := ts.do(t, "GET", "/api/v1/sessions?page=1&per_page=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &listBody)
	if listBody.Total != 1 {
		t.Fatalf("expected total 1, got %d", listBody.Total)
	}

	rec = ts.do(t, "DELETE", "/api/v1/sessions/"+session.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = ts.do(t, "DELETE", "/api/v1/sessions/"+session.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/analyze", AnalyzeRequest{URL: "https://example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var analysis analyze.Analysis
	decodeBody(t, rec, &analysis)
	if !analysis.HasSearch {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}

	rec = ts.do(t, "POST", "/api/v1/analyze", AnalyzeRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing url, got %d", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, _ = ts.engine.CreateSession(context.Background(), "https://example.com", "x", plan.ActionPlan{})

	rec := ts.do(t, "GET", "/api/v1/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Statistics       storage.Statistics `json:"statistics"`
		ActiveExecutions int                `json:"active_executions"`
	}
	decodeBody(t, rec, &body)
	if body.Statistics.TotalSessions != 1 {
		t.Fatalf("unexpected statistics: %+v", body)
	}
}

func TestScreenshotFileServing(t *testing.T) {
	ts := newTestServer(t)

	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write screenshot: %v", err)
	}
	ts.shots.files["/screenshots/shot.png"] = path

	rec := ts.do(t, "GET", "/screenshots/shot.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}

	rec = ts.do(t, "GET", "/screenshots/other.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = ts.do(t, "GET", "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "OPTIONS", "/api/v1/sessions", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers")
	}
}
