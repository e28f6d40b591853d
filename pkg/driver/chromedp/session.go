package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdp "github.com/chromedp/chromedp"

	"github.com/odvcencio/webrunner/pkg/driver"
)

// Session drives one dedicated Chrome process.
type Session struct {
	id      string
	runtime *Runtime

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// run executes chromedp actions on the session's browser context, bounded by
// the caller's deadline when one is set.
func (s *Session) run(ctx context.Context, op string, actions ...cdp.Action) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	runCtx := s.browserCtx
	cancel := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
	}
	defer cancel()

	err := cdp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return driver.WrapError(op, "deadline exceeded", fmt.Errorf("%w: %v", driver.ErrTimeout, err))
	}
	if errors.Is(err, context.Canceled) && s.isClosed() {
		return driver.ErrSessionClosed
	}
	return driver.WrapError(op, "browser call failed", err)
}

// Navigate loads url, waits for the document to be ready, and returns the
// final URL after redirects.
func (s *Session) Navigate(ctx context.Context, url string) (string, error) {
	s.runtime.metrics.RecordNavigate()
	var finalURL string
	err := s.run(ctx, "navigate",
		cdp.Navigate(url),
		cdp.WaitReady("body", cdp.ByQuery),
		cdp.Location(&finalURL),
	)
	if err != nil {
		return "", err
	}
	return finalURL, nil
}

// Count reports how many elements match selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	s.runtime.metrics.RecordQuery()
	var count int
	if err := s.run(ctx, "count", cdp.Evaluate(matchScript(selector, "return nodes.length;"), &count)); err != nil {
		return 0, err
	}
	return count, nil
}

// IsVisible reports whether the first match has a non-empty layout box and
// is not styled out of view.
func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	s.runtime.metrics.RecordQuery()
	script := matchScript(selector, `
		const el = nodes[0];
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;`)
	var visible bool
	if err := s.run(ctx, "is_visible", cdp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// IsEnabled reports whether the first match is not disabled.
func (s *Session) IsEnabled(ctx context.Context, selector string) (bool, error) {
	s.runtime.metrics.RecordQuery()
	script := matchScript(selector, `
		const el = nodes[0];
		return !!el && !el.disabled;`)
	var enabled bool
	if err := s.run(ctx, "is_enabled", cdp.Evaluate(script, &enabled)); err != nil {
		return false, err
	}
	return enabled, nil
}

// IsEditable reports whether the first match accepts text input.
func (s *Session) IsEditable(ctx context.Context, selector string) (bool, error) {
	s.runtime.metrics.RecordQuery()
	script := matchScript(selector, `
		const el = nodes[0];
		if (!el || el.disabled || el.readOnly) return false;
		const tag = el.tagName;
		return tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT' || el.isContentEditable;`)
	var editable bool
	if err := s.run(ctx, "is_editable", cdp.Evaluate(script, &editable)); err != nil {
		return false, err
	}
	return editable, nil
}

// Click clicks the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.recordAction(func() error {
		return s.run(ctx, "click", cdp.Click(selector, queryOpt(selector)))
	})
}

// Fill replaces the content of the first matching input with value.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.recordAction(func() error {
		return s.run(ctx, "fill", cdp.SetValue(selector, value, queryOpt(selector)))
	})
}

// Hover dispatches pointer-over events to the first matching element.
func (s *Session) Hover(ctx context.Context, selector string) error {
	script := matchScript(selector, `
		const el = nodes[0];
		if (!el) throw new Error('no element to hover');
		for (const type of ['mouseover', 'mouseenter', 'mousemove']) {
			el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
		}
		return true;`)
	return s.recordAction(func() error {
		var ok bool
		return s.run(ctx, "hover", cdp.Evaluate(script, &ok))
	})
}

// SelectOption chooses the option with the given value on a select element
// and fires a change event.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	script := matchScript(selector, fmt.Sprintf(`
		const el = nodes[0];
		if (!el) throw new Error('no select element');
		el.value = %s;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === %s;`, jsString(value), jsString(value)))
	return s.recordAction(func() error {
		var ok bool
		if err := s.run(ctx, "select_option", cdp.Evaluate(script, &ok)); err != nil {
			return err
		}
		if !ok {
			return driver.NewError("select_option", fmt.Sprintf("option %q not present", value))
		}
		return nil
	})
}

// ScrollIntoView scrolls the first matching element into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	return s.recordAction(func() error {
		return s.run(ctx, "scroll_into_view", cdp.ScrollIntoView(selector, queryOpt(selector)))
	})
}

// WaitVisible blocks until selector has a visible match or the context
// deadline expires.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, "wait_visible", cdp.WaitVisible(selector, queryOpt(selector)))
}

// Evaluate runs script in the page context.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, "evaluate", cdp.Evaluate(script, out))
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, "title", cdp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// URL returns the current page location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, "url", cdp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Screenshot captures a full-page screenshot as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, "screenshot", cdp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close tears down the browser process. Safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.runtime.metrics.RecordSessionClosed()
	return nil
}

func (s *Session) ensureOpen() error {
	if s == nil {
		return driver.ErrSessionClosed
	}
	if s.isClosed() {
		return driver.ErrSessionClosed
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) recordAction(fn func() error) error {
	start := time.Now()
	err := fn()
	s.runtime.metrics.RecordAction(err == nil, time.Since(start))
	return err
}

// isXPath reports whether selector is an XPath expression rather than CSS.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(")
}

// queryOpt picks the chromedp query strategy matching the selector syntax.
func queryOpt(selector string) cdp.QueryOption {
	if isXPath(selector) {
		return cdp.BySearch
	}
	return cdp.ByQuery
}

// matchScript wraps body in an IIFE that first materializes the elements
// matching selector, CSS or XPath, as a `nodes` array.
func matchScript(selector, body string) string {
	return fmt.Sprintf(`(() => {
		const sel = %s;
		let nodes;
		if (sel.startsWith('//') || sel.startsWith('(')) {
			nodes = [];
			const it = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
		} else {
			nodes = Array.from(document.querySelectorAll(sel));
		}
		%s
	})()`, jsString(selector), body)
}

// jsString quotes a Go string for safe embedding in evaluated scripts.
func jsString(v string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
