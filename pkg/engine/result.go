package engine

import (
	"context"
	"fmt"

	"github.com/odvcencio/webrunner/pkg/plan"
)

// Progress is the live view of a session's execution.
type Progress struct {
	Status         plan.SessionStatus `json:"status"`
	Progress       float64            `json:"progress"`
	CurrentAction  string             `json:"current_action,omitempty"`
	CompletedCount int                `json:"completed_count"`
	ETASeconds     int                `json:"eta_seconds"`
}

// Status reports where a session's execution stands. For a running session
// the live execution context supplies index and timing; otherwise the stored
// record is summarized.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Progress, error) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	exec, running := o.active[id]
	o.mu.Unlock()

	if !running {
		progress := 0.0
		if session.Status == plan.SessionCompleted {
			progress = 100
		}
		return &Progress{
			Status:         session.Status,
			Progress:       progress,
			CompletedCount: session.SuccessCount + session.FailCount,
		}, nil
	}

	current := int(exec.currentIndex.Load())
	total := session.TotalActions()
	progress := 0.0
	if total > 0 {
		progress = float64(current) / float64(total) * 100
	}

	currentAction := ""
	if current < total {
		currentAction = session.Plan.Actions[current].Description
	}

	// ETA extrapolates remaining time from the average so far. Undefined
	// before the first action completes.
	eta := 0
	if current > 0 {
		elapsed := exec.elapsed().Seconds()
		eta = int(elapsed / float64(current) * float64(total-current))
	}

	return &Progress{
		Status:         session.Status,
		Progress:       progress,
		CurrentAction:  currentAction,
		CompletedCount: current,
		ETASeconds:     eta,
	}, nil
}

// Result builds the caller-facing execution report. It is derived read-only:
// calling it never mutates the session, and a run stopped early still yields
// a coherent partial result with untouched actions left pending.
func (o *Orchestrator) Result(ctx context.Context, id string) (*plan.ExecutionResult, error) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	total := session.TotalActions()
	successRate := 0.0
	if total > 0 {
		successRate = float64(session.SuccessCount) / float64(total)
	}

	summary := fmt.Sprintf("Executed %d actions in %d seconds. Success rate: %.1f%%",
		total, session.DurationSec, successRate*100)

	return &plan.ExecutionResult{
		SessionID:       id,
		Status:          session.Status,
		SuccessRate:     successRate,
		TotalDuration:   session.DurationSec,
		ActionResults:   session.Plan.Actions,
		Screenshots:     session.Screenshots,
		Summary:         summary,
		Recommendations: recommendations(session),
	}, nil
}

// Metrics aggregates per-kind timings and detection rates over a finished
// plan.
func (o *Orchestrator) Metrics(ctx context.Context, id string) (*plan.TestMetrics, error) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	timings := make(map[plan.ActionKind]int64)
	found := make(map[plan.ActionKind]int)
	attempted := make(map[plan.ActionKind]int)
	var errorPatterns []string

	for _, a := range session.Plan.Actions {
		if a.ElapsedMs > 0 {
			timings[a.Kind] += a.ElapsedMs
		}
		if a.Status != plan.ActionPending {
			attempted[a.Kind]++
			if a.ElementFound {
				found[a.Kind]++
			}
		}
		if a.ErrorMessage != "" {
			errorPatterns = append(errorPatterns, a.ErrorMessage)
		}
	}

	rates := make(map[plan.ActionKind]float64, len(attempted))
	for kind, total := range attempted {
		rates[kind] = float64(found[kind]) / float64(total)
	}

	successRate := 0.0
	if total := session.TotalActions(); total > 0 {
		successRate = float64(session.SuccessCount) / float64(total)
	}

	return &plan.TestMetrics{
		SessionID:        id,
		ActionTimings:    timings,
		DetectionRates:   rates,
		ErrorPatterns:    errorPatterns,
		PerformanceScore: successRate * 100,
		ReliabilityScore: successRate * 100,
	}, nil
}

// Screenshots lists the screenshot references collected for a session.
func (o *Orchestrator) Screenshots(ctx context.Context, id string) ([]string, error) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Screenshots, nil
}
