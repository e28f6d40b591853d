// Package engine contains the action execution core: the adaptive element
// resolver, the per-action executor, and the orchestrator that drives a
// session's plan through its run-to-completion state machine.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/odvcencio/webrunner/pkg/driver"
	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/plan"
)

// SessionStore is the narrow persistence interface the orchestrator needs.
// The durable copy is the source of truth between runs; the orchestrator
// exclusively owns the in-memory copy during a run.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*plan.Session, error)
	SaveSession(ctx context.Context, session *plan.Session) error
	UpdateSession(ctx context.Context, session *plan.Session) error
}

// flushInterval is how many actions run between periodic store flushes,
// bounding data loss on crash.
const flushInterval = 5

// defaultRetryBackoff is the fixed sleep between action attempts.
const defaultRetryBackoff = time.Second

// execution is the per-running-session bookkeeping. It exists only for the
// duration of a run. The cancel flag and index are atomics because Stop and
// Status touch them from other goroutines; everything else belongs to the
// run's own goroutine.
type execution struct {
	sessionID string
	startTime time.Time

	currentIndex atomic.Int64
	cancelled    atomic.Bool
}

func (e *execution) elapsed() time.Duration {
	return time.Since(e.startTime)
}

// Options configures an Orchestrator.
type Options struct {
	// MaxConcurrent bounds simultaneously running sessions. Zero means 1.
	MaxConcurrent int
	// Driver is the session config template; the session id is filled in
	// per run.
	Driver driver.Config
	// RetryBackoff overrides the sleep between attempts. Zero means 1s.
	RetryBackoff time.Duration
}

// Orchestrator owns session lifecycle: creating sessions, running plans,
// cancellation, progress, and result derivation.
type Orchestrator struct {
	store    SessionStore
	runtime  driver.Runtime
	executor *Executor
	logger   *logging.Logger

	driverCfg    driver.Config
	retryBackoff time.Duration
	sem          *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*execution
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store SessionStore, runtime driver.Runtime, executor *Executor, logger *logging.Logger, opts Options) *Orchestrator {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Orchestrator{
		store:        store,
		runtime:      runtime,
		executor:     executor,
		logger:       logger,
		driverCfg:    opts.Driver,
		retryBackoff: backoff,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		active:       make(map[string]*execution),
	}
}

// CreateSession validates and normalizes the plan, then persists a new
// pending session.
func (o *Orchestrator) CreateSession(ctx context.Context, websiteURL, prompt string, p plan.ActionPlan) (*plan.Session, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid action plan: %w", err)
	}

	session := &plan.Session{
		ID:         ulid.Make().String(),
		WebsiteURL: websiteURL,
		Prompt:     prompt,
		Plan:       p,
		Status:     plan.SessionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	o.logger.Info(logging.CategoryOrchestrator, "session_created", session.ID,
		"created session", map[string]any{"website_url": websiteURL, "actions": session.TotalActions()})
	return session, nil
}

// Start begins executing a pending session in the background. Starting a
// session that is already running or finished is an error, never a silent
// no-op.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != plan.SessionPending {
		return fmt.Errorf("%w: session %s is %s", ErrSessionConflict, id, session.Status)
	}
	if !o.sem.TryAcquire(1) {
		return ErrBusy
	}

	exec := &execution{sessionID: id, startTime: time.Now()}

	// Check-and-register is the only contended critical section; the run
	// itself executes outside the lock.
	o.mu.Lock()
	if _, running := o.active[id]; running {
		o.mu.Unlock()
		o.sem.Release(1)
		return fmt.Errorf("%w: session %s is already running", ErrSessionConflict, id)
	}
	o.active[id] = exec
	o.mu.Unlock()

	recordSessionStarted()
	go o.run(id, exec)
	return nil
}

// Stop requests cancellation of a running session. The flag is observed at
// the next action boundary; the in-flight action finishes its current attempt
// first. Returns false when the session is not running.
func (o *Orchestrator) Stop(id string) bool {
	o.mu.Lock()
	exec, ok := o.active[id]
	o.mu.Unlock()
	if !ok {
		return false
	}
	exec.cancelled.Store(true)
	o.logger.Info(logging.CategoryOrchestrator, "stop_requested", id, "stop requested", nil)
	return true
}

// ActiveCount reports how many sessions are currently executing.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// run drives one session to a terminal state. Any panic escaping the loop is
// converted into a session-level failure; the execution entry and driver
// session are always released.
func (o *Orchestrator) run(id string, exec *execution) {
	ctx := context.Background()
	status := string(plan.SessionFailed)

	defer func() {
		if r := recover(); r != nil {
			o.failSession(ctx, id, fmt.Sprintf("execution panic: %v", r))
		}
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
		o.sem.Release(1)
		recordSessionFinished(status)
	}()

	final, err := o.execute(ctx, id, exec)
	if err != nil {
		o.failSession(ctx, id, err.Error())
		return
	}
	status = string(final)
}

// execute runs the plan loop and returns the terminal status it wrote.
func (o *Orchestrator) execute(ctx context.Context, id string, exec *execution) (plan.SessionStatus, error) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session.Status = plan.SessionRunning
	session.StartedAt = &now
	if err := o.store.UpdateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to mark session running: %w", err)
	}

	cfg := o.driverCfg
	cfg.SessionID = id
	sess, err := o.runtime.NewSession(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to open browser session: %w", err)
	}
	defer sess.Close()

	o.logger.Info(logging.CategoryOrchestrator, "execution_started", id,
		"execution started", map[string]any{"actions": session.TotalActions()})

	successCount := 0
	failCount := 0
	sawCancel := false
	actions := session.Plan.Actions

	for i := range actions {
		if exec.cancelled.Load() {
			sawCancel = true
			o.logger.Info(logging.CategoryOrchestrator, "execution_cancelled", id,
				"cancellation observed", map[string]any{"at_index": i})
			break
		}
		exec.currentIndex.Store(int64(i))

		o.executeWithRetry(ctx, sess, id, &actions[i])

		recordAction(string(actions[i].Kind), string(actions[i].Status),
			float64(actions[i].ElapsedMs)/1000)

		if actions[i].Status == plan.ActionSuccess {
			successCount++
		} else {
			failCount++
			if actions[i].Critical {
				o.logger.Error(logging.CategoryOrchestrator, "critical_failure", id,
					"critical action failed, stopping execution",
					map[string]any{"description": actions[i].Description})
				break
			}
		}

		if actions[i].ScreenshotRef != "" {
			session.Screenshots = append(session.Screenshots, actions[i].ScreenshotRef)
		}

		session.SuccessCount = successCount
		session.FailCount = failCount
		if i%flushInterval == 0 {
			if err := o.store.UpdateSession(ctx, session); err != nil {
				o.logger.Warn(logging.CategoryStorage, "flush_failed", id,
					"periodic flush failed", map[string]any{"error": err.Error()})
			}
		}
	}

	// A stop landing during the last action still takes effect.
	if exec.cancelled.Load() {
		sawCancel = true
	}

	switch {
	case sawCancel:
		session.Status = plan.SessionCancelled
	case failCount > 0:
		session.Status = plan.SessionFailed
	default:
		session.Status = plan.SessionCompleted
	}

	done := time.Now().UTC()
	session.CompletedAt = &done
	if session.StartedAt != nil {
		session.DurationSec = int(done.Sub(*session.StartedAt).Seconds())
	}
	session.SuccessCount = successCount
	session.FailCount = failCount
	session.ErrorSummary = errorSummary(actions)

	if err := o.store.UpdateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to finalize session: %w", err)
	}

	o.logger.Info(logging.CategoryOrchestrator, "execution_finished", id,
		"execution finished", map[string]any{
			"status": string(session.Status), "success": successCount, "failed": failCount,
		})
	return session.Status, nil
}

// executeWithRetry runs one action up to its retry limit with a fixed backoff
// between attempts, writing the final outcome onto the action.
func (o *Orchestrator) executeWithRetry(ctx context.Context, sess driver.Session, id string, a *plan.Action) {
	a.Status = plan.ActionRunning
	lastErr := ""

	for attempt := 1; attempt <= a.RetryLimit; attempt++ {
		out := o.executor.Execute(ctx, sess, id, *a)
		applyOutcome(a, out)
		if out.Status == plan.ActionSuccess {
			return
		}
		lastErr = out.ErrorMessage
		o.logger.Warn(logging.CategoryOrchestrator, "attempt_failed", id,
			"action attempt failed",
			map[string]any{"action_id": a.ID, "attempt": attempt, "error": lastErr})
		if attempt < a.RetryLimit {
			recordRetry()
			time.Sleep(o.retryBackoff)
		}
	}

	a.Status = plan.ActionFailed
	a.ErrorMessage = fmt.Sprintf("Failed after %d attempts. Last error: %s", a.RetryLimit, lastErr)
}

// applyOutcome writes an attempt outcome onto the action.
func applyOutcome(a *plan.Action, out Outcome) {
	a.Status = out.Status
	a.ElapsedMs = out.ElapsedMs
	a.ErrorMessage = out.ErrorMessage
	a.ElementFound = out.ElementFound
	a.ActualResult = out.ActualResult
	if out.ScreenshotRef != "" {
		a.ScreenshotRef = out.ScreenshotRef
	}
}

// failSession records a session-level failure, preserving whatever per-action
// outcomes were already written.
func (o *Orchestrator) failSession(ctx context.Context, id, message string) {
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		o.logger.Error(logging.CategoryOrchestrator, "failure_handling_error", id,
			"could not load session to record failure", map[string]any{"error": err.Error()})
		return
	}
	session.Status = plan.SessionFailed
	session.ErrorSummary = message
	done := time.Now().UTC()
	session.CompletedAt = &done
	if session.StartedAt != nil {
		session.DurationSec = int(done.Sub(*session.StartedAt).Seconds())
	}
	if err := o.store.UpdateSession(ctx, session); err != nil {
		o.logger.Error(logging.CategoryOrchestrator, "failure_handling_error", id,
			"could not persist session failure", map[string]any{"error": err.Error()})
	}
}

// errorSummary concatenates each failed action's description and error.
func errorSummary(actions []plan.Action) string {
	var failed []string
	for _, a := range actions {
		if a.Status == plan.ActionFailed {
			failed = append(failed, fmt.Sprintf("- %s: %s", a.Description, a.ErrorMessage))
		}
	}
	if len(failed) == 0 {
		return ""
	}
	return "Failed actions:\n" + strings.Join(failed, "\n")
}
