// Package driver defines the browser automation contract the execution
// engine depends on. Concrete runtimes live under adapters such as
// driver/chromedp; the engine only sees these interfaces.
package driver

import "context"

// Runtime creates browser sessions.
type Runtime interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
	Close() error
}

// Session is the port implemented by browser runtime adapters. Every call is
// bounded by the supplied context; adapters map their native failures to
// *Error so the engine can classify them.
type Session interface {
	ID() string

	// Navigate loads url and waits for the page to settle, returning the
	// final URL after redirects.
	Navigate(ctx context.Context, url string) (string, error)

	// Count reports how many elements match selector. A zero count is not
	// an error.
	Count(ctx context.Context, selector string) (int, error)

	// Element readiness predicates, evaluated against the first match.
	IsVisible(ctx context.Context, selector string) (bool, error)
	IsEnabled(ctx context.Context, selector string) (bool, error)
	IsEditable(ctx context.Context, selector string) (bool, error)

	// Interactions against the first element matching selector.
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	ScrollIntoView(ctx context.Context, selector string) error

	// WaitVisible blocks until selector has a visible match or ctx expires.
	WaitVisible(ctx context.Context, selector string) error

	// Evaluate runs script in the page and, when out is non-nil, unmarshals
	// the result into it.
	Evaluate(ctx context.Context, script string, out any) error

	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

// Config configures a browser session.
type Config struct {
	SessionID      string `json:"session_id"`
	Headless       bool   `json:"headless"`
	NoSandbox      bool   `json:"no_sandbox"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// DefaultConfig returns the recommended session defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
}
