// Package chromedp implements the driver contract on top of a headless
// Chrome instance controlled through the DevTools protocol.
package chromedp

import (
	"context"
	"fmt"
	"sync"

	cdp "github.com/chromedp/chromedp"

	"github.com/odvcencio/webrunner/pkg/driver"
)

// Runtime launches one Chrome process per session so concurrent runs never
// share browser state.
type Runtime struct {
	metrics *driver.Metrics

	mu     sync.Mutex
	closed bool
}

// NewRuntime creates a chromedp-backed runtime.
func NewRuntime(metrics *driver.Metrics) *Runtime {
	if metrics == nil {
		metrics = driver.NewMetrics()
	}
	return &Runtime{metrics: metrics}
}

// Metrics exposes the runtime's counters.
func (r *Runtime) Metrics() *driver.Metrics {
	return r.metrics
}

// NewSession allocates a fresh browser process configured per cfg.
func (r *Runtime) NewSession(ctx context.Context, cfg driver.Config) (driver.Session, error) {
	if r == nil {
		return nil, driver.ErrUnavailable
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, driver.ErrUnavailable
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	opts := append([]cdp.ExecAllocatorOption{}, cdp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		cdp.Flag("headless", cfg.Headless),
		cdp.Flag("no-first-run", true),
		cdp.Flag("no-default-browser-check", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, cdp.NoSandbox)
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, cdp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, cdp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := cdp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := cdp.NewContext(allocCtx)

	// Start the browser eagerly so a missing Chrome binary surfaces here
	// instead of on the first action.
	if err := cdp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, driver.WrapError("launch", "failed to start browser", err)
	}

	r.metrics.RecordSessionCreated()
	return &Session{
		id:            cfg.SessionID,
		runtime:       r,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Close marks the runtime unavailable for new sessions. Existing sessions
// keep their own browser processes and are closed individually.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
