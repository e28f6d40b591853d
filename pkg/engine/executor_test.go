package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/webrunner/pkg/plan"
)

func newTestExecutor() (*Executor, *fakeShots) {
	shots := &fakeShots{}
	return NewExecutor(NewResolver(nil), shots, nil), shots
}

func TestExecuteNavigateAddsScheme(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionNavigate, "Open shop", "shop.example.com", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.True(t, sess.hasNavigated("https://shop.example.com"))
	assert.Contains(t, out.ActualResult, "Navigated to https://shop.example.com")
	assert.True(t, out.ElementFound)
}

func TestExecuteClickSuccess(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent("#buy-now")

	a := plan.NewAction(plan.ActionClick, "Click buy", "#buy-now", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.Equal(t, 1, sess.clickCalls)
	assert.Contains(t, out.ActualResult, "Clicked element: #buy-now")
}

func TestExecuteClickResolutionFailureCapturesErrorScreenshot(t *testing.T) {
	exec, shots := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionClick, "Click missing", "#missing", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionFailed, out.Status)
	assert.Contains(t, out.ErrorMessage, "could not find ready element")
	assert.False(t, out.ElementFound)
	require.Len(t, shots.saved, 1)
	assert.Contains(t, shots.saved[0], "_error")
	assert.Equal(t, shots.saved[0], out.ScreenshotRef)
}

func TestExecuteTypeFillsResolvedInput(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent("input[type='email']")

	a := plan.NewAction(plan.ActionType, "Enter email", "email field", "user@example.com")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.Equal(t, 1, sess.fillCalls)
	assert.Contains(t, out.ActualResult, `Typed "user@example.com" into email field`)
}

func TestExecuteWaitTimeBased(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionWait, "Pause", "time", "20")
	start := time.Now()
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, "Waited for 20ms", out.ActualResult)
}

func TestExecuteWaitNumericTarget(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionWait, "Pause", "15", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.Equal(t, "Waited for 15ms", out.ActualResult)
}

func TestExecuteWaitForElement(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent("#results")

	a := plan.NewAction(plan.ActionWait, "Wait for results", "#results", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.Equal(t, "Waited for element: #results", out.ActualResult)
}

func TestExecuteScrollKeywords(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()

	for _, target := range []string{"top", "bottom"} {
		a := plan.NewAction(plan.ActionScroll, "Scroll "+target, target, "")
		out := exec.Execute(context.Background(), sess, "s1", a)
		require.Equal(t, plan.ActionSuccess, out.Status, "target %s", target)
		assert.Contains(t, out.ActualResult, "Scrolled to "+target)
	}
}

func TestExecuteVerifyTitle(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession() // title "Example Domain"

	a := plan.NewAction(plan.ActionVerify, "Check title", "title", "example")
	out := exec.Execute(context.Background(), sess, "s1", a)
	require.Equal(t, plan.ActionSuccess, out.Status, "title match is case-insensitive")

	a = plan.NewAction(plan.ActionVerify, "Check title", "title", "unrelated")
	out = exec.Execute(context.Background(), sess, "s1", a)
	require.Equal(t, plan.ActionFailed, out.Status)
	assert.Contains(t, out.ErrorMessage, "title verification failed")
}

func TestExecuteVerifyURL(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession() // url "https://example.com/"

	a := plan.NewAction(plan.ActionVerify, "Check url", "url", "example.com")
	out := exec.Execute(context.Background(), sess, "s1", a)
	require.Equal(t, plan.ActionSuccess, out.Status)

	a = plan.NewAction(plan.ActionVerify, "Check url", "url", "other.com")
	out = exec.Execute(context.Background(), sess, "s1", a)
	require.Equal(t, plan.ActionFailed, out.Status)
}

func TestExecuteVerifyElementPresence(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent(".cart-badge")

	a := plan.NewAction(plan.ActionVerify, "Cart updated", ".cart-badge", "")
	out := exec.Execute(context.Background(), sess, "s1", a)
	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.Contains(t, out.ActualResult, "Element verification passed")
}

func TestExecuteScreenshotAction(t *testing.T) {
	exec, shots := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionScreenshot, "Capture", "", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	require.Len(t, shots.saved, 1)
	assert.Equal(t, shots.saved[0], out.ScreenshotRef)
	assert.Contains(t, out.ActualResult, "Screenshot saved")
}

func TestExecuteOptionalScreenshotOnSuccess(t *testing.T) {
	exec, shots := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent("#ok")

	a := plan.NewAction(plan.ActionClick, "Click ok", "#ok", "")
	a.Screenshot = true
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	require.Len(t, shots.saved, 1)
	assert.Contains(t, shots.saved[0], "_success")
	assert.Equal(t, shots.saved[0], out.ScreenshotRef)
}

func TestExecuteHonorsDelays(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()
	sess.markPresent("#ok")

	a := plan.NewAction(plan.ActionClick, "Click ok", "#ok", "")
	a.DelayBefore = 15
	a.DelayAfter = 15
	start := time.Now()
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionSuccess, out.Status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.GreaterOrEqual(t, out.ElapsedMs, int64(30), "delays count toward wall-clock time")
}

func TestExecuteMeasuresElapsedOnFailure(t *testing.T) {
	exec, _ := newTestExecutor()
	sess := newFakeSession()

	a := plan.NewAction(plan.ActionClick, "Click missing", "#missing", "")
	out := exec.Execute(context.Background(), sess, "s1", a)

	require.Equal(t, plan.ActionFailed, out.Status)
	assert.GreaterOrEqual(t, out.ElapsedMs, int64(0))
}
