package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/webrunner/pkg/driver"
	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/plan"
)

// ScreenshotStore persists captured images and returns reference paths.
type ScreenshotStore interface {
	Save(sessionID, name string, data []byte) (string, error)
}

// Outcome is the result of one execution attempt. The retry loop inspects it
// instead of catching errors; only the orchestrator writes it back onto the
// action.
type Outcome struct {
	Status        plan.ActionStatus
	ActualResult  string
	ErrorMessage  string
	ElementFound  bool
	ScreenshotRef string
	ElapsedMs     int64
}

// stepResult carries kind-specific output from a dispatch branch.
type stepResult struct {
	actual        string
	screenshotRef string
}

// Executor performs one action against the live page, normalizing the
// heterogeneous driver behavior into a uniform Outcome.
type Executor struct {
	resolver *Resolver
	shots    ScreenshotStore
	logger   *logging.Logger
}

// NewExecutor creates an executor.
func NewExecutor(resolver *Resolver, shots ScreenshotStore, logger *logging.Logger) *Executor {
	return &Executor{resolver: resolver, shots: shots, logger: logger}
}

// Execute runs a single attempt of the action. Execution time is measured
// wall-clock from entry to exit regardless of outcome. On failure a
// best-effort screenshot is captured; secondary failures are swallowed so the
// original error is preserved.
func (e *Executor) Execute(ctx context.Context, sess driver.Session, sessionID string, a plan.Action) Outcome {
	start := time.Now()
	out := Outcome{}

	if a.DelayBefore > 0 {
		time.Sleep(time.Duration(a.DelayBefore) * time.Millisecond)
	}

	actx, cancel := context.WithTimeout(ctx, a.Timeout())
	res, err := e.dispatch(actx, sess, sessionID, a)
	cancel()

	if err != nil {
		e.logger.Error(logging.CategoryExecutor, "action_failed", sessionID,
			"action failed", map[string]any{"action_id": a.ID, "description": a.Description, "error": err.Error()})
		out.Status = plan.ActionFailed
		out.ErrorMessage = err.Error()
		if ref, shotErr := e.capture(ctx, sess, sessionID, a.ID+"_error"); shotErr == nil {
			out.ScreenshotRef = ref
		}
		out.ElapsedMs = time.Since(start).Milliseconds()
		return out
	}

	out.Status = plan.ActionSuccess
	out.ActualResult = res.actual
	out.ElementFound = true
	out.ScreenshotRef = res.screenshotRef

	if a.Screenshot && out.ScreenshotRef == "" {
		if ref, shotErr := e.capture(ctx, sess, sessionID, a.ID+"_success"); shotErr == nil {
			out.ScreenshotRef = ref
		} else {
			e.logger.Warn(logging.CategoryExecutor, "screenshot_failed", sessionID,
				"post-action screenshot failed", map[string]any{"action_id": a.ID, "error": shotErr.Error()})
		}
	}

	if a.DelayAfter > 0 {
		time.Sleep(time.Duration(a.DelayAfter) * time.Millisecond)
	}

	out.ElapsedMs = time.Since(start).Milliseconds()
	return out
}

// dispatch routes to the kind-specific behavior. The switch is exhaustive
// over plan.Kinds.
func (e *Executor) dispatch(ctx context.Context, sess driver.Session, sessionID string, a plan.Action) (stepResult, error) {
	switch a.Kind {
	case plan.ActionNavigate:
		return e.executeNavigate(ctx, sess, a)
	case plan.ActionClick:
		return e.executeClick(ctx, sess, a)
	case plan.ActionType:
		return e.executeType(ctx, sess, a)
	case plan.ActionWait:
		return e.executeWait(ctx, sess, a)
	case plan.ActionScroll:
		return e.executeScroll(ctx, sess, a)
	case plan.ActionHover:
		return e.executeHover(ctx, sess, a)
	case plan.ActionSelect:
		return e.executeSelect(ctx, sess, a)
	case plan.ActionVerify:
		return e.executeVerify(ctx, sess, a)
	case plan.ActionScreenshot:
		return e.executeScreenshot(ctx, sess, sessionID, a)
	default:
		return stepResult{}, fmt.Errorf("unsupported action kind: %s", a.Kind)
	}
}

func (e *Executor) executeNavigate(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	url := a.Target
	if url == "" {
		url = a.Value
	}
	if url == "" {
		return stepResult{}, fmt.Errorf("navigate requires a url")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	final, err := sess.Navigate(ctx, url)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Navigated to %s", final)}, nil
}

func (e *Executor) executeClick(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	sel, err := e.resolver.Resolve(ctx, sess, a.Target, a.Value, plan.ActionClick)
	if err != nil {
		return stepResult{}, err
	}
	if err := sess.ScrollIntoView(ctx, sel); err != nil {
		return stepResult{}, err
	}
	if err := sess.WaitVisible(ctx, sel); err != nil {
		return stepResult{}, err
	}
	if err := sess.Click(ctx, sel); err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Clicked element: %s", a.Target)}, nil
}

func (e *Executor) executeType(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	sel, err := e.resolver.Resolve(ctx, sess, a.Target, a.Value, plan.ActionType)
	if err != nil {
		return stepResult{}, err
	}
	// Fill replaces the existing content in one shot.
	if err := sess.Fill(ctx, sel, a.Value); err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Typed %q into %s", a.Value, a.Target)}, nil
}

func (e *Executor) executeWait(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	if strings.EqualFold(a.Target, "time") || isDigits(a.Target) {
		ms := 1000
		if v, err := strconv.Atoi(a.Value); err == nil {
			ms = v
		} else if v, err := strconv.Atoi(a.Target); err == nil {
			ms = v
		}
		// Time-based waits are unbounded by the action timeout: the caller
		// chose the duration.
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return stepResult{actual: fmt.Sprintf("Waited for %dms", ms)}, nil
	}
	if err := sess.WaitVisible(ctx, a.Target); err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Waited for element: %s", a.Target)}, nil
}

func (e *Executor) executeScroll(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	switch strings.ToLower(a.Target) {
	case "top":
		if err := sess.Evaluate(ctx, "window.scrollTo(0, 0)", nil); err != nil {
			return stepResult{}, err
		}
	case "bottom":
		if err := sess.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil); err != nil {
			return stepResult{}, err
		}
	default:
		sel, err := e.resolver.Resolve(ctx, sess, a.Target, a.Value, plan.ActionScroll)
		if err != nil {
			return stepResult{}, err
		}
		if err := sess.ScrollIntoView(ctx, sel); err != nil {
			return stepResult{}, err
		}
	}
	return stepResult{actual: fmt.Sprintf("Scrolled to %s", a.Target)}, nil
}

func (e *Executor) executeHover(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	sel, err := e.resolver.Resolve(ctx, sess, a.Target, a.Value, plan.ActionHover)
	if err != nil {
		return stepResult{}, err
	}
	if err := sess.Hover(ctx, sel); err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Hovered over %s", a.Target)}, nil
}

func (e *Executor) executeSelect(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	sel, err := e.resolver.Resolve(ctx, sess, a.Target, a.Value, plan.ActionSelect)
	if err != nil {
		return stepResult{}, err
	}
	if err := sess.SelectOption(ctx, sel, a.Value); err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Selected %q from %s", a.Value, a.Target)}, nil
}

func (e *Executor) executeVerify(ctx context.Context, sess driver.Session, a plan.Action) (stepResult, error) {
	switch strings.ToLower(a.Target) {
	case "title":
		title, err := sess.Title(ctx)
		if err != nil {
			return stepResult{}, err
		}
		if !strings.Contains(strings.ToLower(title), strings.ToLower(a.Value)) {
			return stepResult{}, &VerificationError{
				Message: fmt.Sprintf("title verification failed: %q does not contain %q", title, a.Value),
			}
		}
		return stepResult{actual: fmt.Sprintf("Title verification passed: %q", title)}, nil

	case "url":
		current, err := sess.URL(ctx)
		if err != nil {
			return stepResult{}, err
		}
		if !strings.Contains(current, a.Value) {
			return stepResult{}, &VerificationError{
				Message: fmt.Sprintf("url verification failed: %q does not contain %q", current, a.Value),
			}
		}
		return stepResult{actual: fmt.Sprintf("URL verification passed: %q", current)}, nil

	default:
		// Element presence first, then visible text containing the value.
		if err := sess.WaitVisible(ctx, a.Target); err == nil {
			return stepResult{actual: fmt.Sprintf("Element verification passed: %s", a.Target)}, nil
		}
		if a.Value != "" {
			textSel := fmt.Sprintf("//*[contains(normalize-space(.), %s)]", xpathString(a.Value))
			if count, err := sess.Count(ctx, textSel); err == nil && count > 0 {
				return stepResult{actual: fmt.Sprintf("Text verification passed: %q", a.Value)}, nil
			}
		}
		return stepResult{}, &VerificationError{
			Message: fmt.Sprintf("verification failed: could not find %q or %q", a.Target, a.Value),
		}
	}
}

func (e *Executor) executeScreenshot(ctx context.Context, sess driver.Session, sessionID string, a plan.Action) (stepResult, error) {
	ref, err := e.capture(ctx, sess, sessionID, a.ID)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{actual: fmt.Sprintf("Screenshot saved: %s", ref), screenshotRef: ref}, nil
}

// capture takes a screenshot and persists it under the session's namespace.
func (e *Executor) capture(ctx context.Context, sess driver.Session, sessionID, name string) (string, error) {
	data, err := sess.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	return e.shots.Save(sessionID, name, data)
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
