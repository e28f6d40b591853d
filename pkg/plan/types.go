// Package plan defines the action plan and session data model shared by the
// planner, execution engine, storage, and API layers.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind identifies the browser operation an action performs.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionWait       ActionKind = "wait"
	ActionScroll     ActionKind = "scroll"
	ActionHover      ActionKind = "hover"
	ActionSelect     ActionKind = "select"
	ActionVerify     ActionKind = "verify"
	ActionScreenshot ActionKind = "screenshot"
)

// Kinds lists every supported action kind in a stable order.
func Kinds() []ActionKind {
	return []ActionKind{
		ActionNavigate, ActionClick, ActionType, ActionWait, ActionScroll,
		ActionHover, ActionSelect, ActionVerify, ActionScreenshot,
	}
}

// ActionStatus tracks the outcome of a single action.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionRunning ActionStatus = "running"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
	ActionSkipped ActionStatus = "skipped"
)

// SessionStatus tracks the lifecycle of a test session. Terminal states
// (completed/failed/cancelled) are set exactly once and never reverted.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Timeout bounds applied to every action.
const (
	MinActionTimeoutMs = 5000
	MaxActionTimeoutMs = 60000
)

// Action is a single declarative browser step. The outcome fields at the
// bottom are written only by the orchestrator once execution begins.
type Action struct {
	ID          string     `json:"id"`
	Kind        ActionKind `json:"kind"`
	Description string     `json:"description"`
	Target      string     `json:"target,omitempty"`
	Value       string     `json:"value,omitempty"`
	TimeoutMs   int        `json:"timeout_ms"`
	Screenshot  bool       `json:"screenshot,omitempty"`
	Critical    bool       `json:"critical,omitempty"`
	RetryLimit  int        `json:"retry_limit"`
	DelayBefore int        `json:"delay_before_ms,omitempty"`
	DelayAfter  int        `json:"delay_after_ms,omitempty"`

	// Execution outcome, populated by the orchestrator.
	Status        ActionStatus `json:"status"`
	ElapsedMs     int64        `json:"elapsed_ms,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	ScreenshotRef string       `json:"screenshot_ref,omitempty"`
	ElementFound  bool         `json:"element_found,omitempty"`
	ActualResult  string       `json:"actual_result,omitempty"`
}

// NewAction returns an action of the given kind with an id and defaults applied.
func NewAction(kind ActionKind, description, target, value string) Action {
	a := Action{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Target:      target,
		Value:       value,
		TimeoutMs:   30000,
		RetryLimit:  3,
		Status:      ActionPending,
	}
	return a
}

// Timeout returns the action timeout as a duration.
func (a *Action) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// RiskLevel categorizes a plan's blast radius.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionPlan is an ordered sequence of actions plus planning metadata.
// Order is significant: actions execute strictly in sequence. The plan is
// immutable once execution starts, except for per-action outcome fields.
type ActionPlan struct {
	ID                   string    `json:"id"`
	WebsiteURL           string    `json:"website_url"`
	Actions              []Action  `json:"actions"`
	Confidence           float64   `json:"confidence"`
	Reasoning            string    `json:"reasoning,omitempty"`
	EstimatedDurationSec int       `json:"estimated_duration_sec"`
	RiskLevel            RiskLevel `json:"risk_level"`
	CreatedAt            time.Time `json:"created_at"`
}

// Session is the durable record of one test run: the plan plus lifecycle
// state, counters, and collected artifacts.
type Session struct {
	ID         string        `json:"id"`
	WebsiteURL string        `json:"website_url"`
	Prompt     string        `json:"prompt"`
	Plan       ActionPlan    `json:"plan"`
	Status     SessionStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationSec int        `json:"duration_sec,omitempty"`

	SuccessCount int      `json:"success_count"`
	FailCount    int      `json:"fail_count"`
	Screenshots  []string `json:"screenshots,omitempty"`
	ErrorSummary string   `json:"error_summary,omitempty"`
}

// TotalActions returns the number of actions in the session's plan.
func (s *Session) TotalActions() int {
	return len(s.Plan.Actions)
}

// ExecutionResult is the caller-facing summary of a finished (or stopped) run.
// It is derived read-only from the session; building it never mutates state.
type ExecutionResult struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	SuccessRate     float64       `json:"success_rate"`
	TotalDuration   int           `json:"total_duration_sec"`
	ActionResults   []Action      `json:"action_results"`
	Screenshots     []string      `json:"screenshots"`
	Summary         string        `json:"summary"`
	Recommendations []string      `json:"recommendations"`
}

// TestMetrics aggregates per-kind timing and detection statistics for a
// finished session.
type TestMetrics struct {
	SessionID        string                `json:"session_id"`
	ActionTimings    map[ActionKind]int64  `json:"action_timings_ms"`
	DetectionRates   map[ActionKind]float64 `json:"element_detection_rates"`
	ErrorPatterns    []string              `json:"error_patterns"`
	PerformanceScore float64               `json:"performance_score"`
	ReliabilityScore float64               `json:"reliability_score"`
}
