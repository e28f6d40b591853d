package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/odvcencio/webrunner/pkg/driver"
	"github.com/odvcencio/webrunner/pkg/plan"
)

// memStore is an in-memory SessionStore. Load returns a deep copy so tests
// observe only what the orchestrator flushed.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]plan.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]plan.Session)}
}

func (s *memStore) GetSession(_ context.Context, id string) (*plan.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *memStore) SaveSession(_ context.Context, session *plan.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *cloneSession(*session)
	return nil
}

func (s *memStore) UpdateSession(ctx context.Context, session *plan.Session) error {
	return s.SaveSession(ctx, session)
}

func cloneSession(session plan.Session) *plan.Session {
	out := session
	out.Plan.Actions = append([]plan.Action(nil), session.Plan.Actions...)
	out.Screenshots = append([]string(nil), session.Screenshots...)
	return &out
}

// fakeShots records saved screenshots without touching disk.
type fakeShots struct {
	mu    sync.Mutex
	saved []string
}

func (f *fakeShots) Save(sessionID, name string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := fmt.Sprintf("/screenshots/%s_%s.png", sessionID, name)
	f.saved = append(f.saved, ref)
	return ref, nil
}

// fakeRuntime hands out a single scripted session.
type fakeRuntime struct {
	mu      sync.Mutex
	session *fakeSession
	newErr  error
	created int
}

func newFakeRuntime(session *fakeSession) *fakeRuntime {
	return &fakeRuntime{session: session}
}

func (r *fakeRuntime) NewSession(_ context.Context, cfg driver.Config) (driver.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.newErr != nil {
		return nil, r.newErr
	}
	r.created++
	r.session.id = cfg.SessionID
	return r.session, nil
}

func (r *fakeRuntime) Close() error { return nil }

// fakeSession simulates a page as a set of present selectors. Elements are
// visible, enabled, and editable unless a test marks them otherwise.
type fakeSession struct {
	mu sync.Mutex
	id string

	present    map[string]bool
	notVisible map[string]bool
	disabled   map[string]bool
	readOnly   map[string]bool

	title   string
	pageURL string

	// failClicks makes the first N Click calls fail.
	failClicks int
	clickCalls int
	fillCalls  int

	navigated  []string
	onNavigate func(url string)

	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		present:    make(map[string]bool),
		notVisible: make(map[string]bool),
		disabled:   make(map[string]bool),
		readOnly:   make(map[string]bool),
		title:      "Example Domain",
		pageURL:    "https://example.com/",
	}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Navigate(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	hook := f.onNavigate
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return url, nil
}

func (f *fakeSession) Count(_ context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[selector] {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSession) IsVisible(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector] && !f.notVisible[selector], nil
}

func (f *fakeSession) IsEnabled(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector] && !f.disabled[selector], nil
}

func (f *fakeSession) IsEditable(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector] && !f.disabled[selector] && !f.readOnly[selector], nil
}

func (f *fakeSession) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clickCalls++
	if f.clickCalls <= f.failClicks {
		return driver.NewError("click", "element detached during click")
	}
	if !f.present[selector] {
		return driver.NewError("click", "no element matches "+selector)
	}
	return nil
}

func (f *fakeSession) Fill(_ context.Context, selector, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fillCalls++
	if !f.present[selector] {
		return driver.NewError("fill", "no element matches "+selector)
	}
	return nil
}

func (f *fakeSession) Hover(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[selector] {
		return driver.NewError("hover", "no element matches "+selector)
	}
	return nil
}

func (f *fakeSession) SelectOption(_ context.Context, selector, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[selector] {
		return driver.NewError("select_option", "no element matches "+selector)
	}
	return nil
}

func (f *fakeSession) ScrollIntoView(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[selector] {
		return driver.NewError("scroll_into_view", "no element matches "+selector)
	}
	return nil
}

func (f *fakeSession) WaitVisible(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[selector] && !f.notVisible[selector] {
		return nil
	}
	return driver.WrapError("wait_visible", "timeout waiting for "+selector, driver.ErrTimeout)
}

func (f *fakeSession) Evaluate(_ context.Context, script string, out any) error {
	// Text-presence probes look for a marker the tests can plant via a
	// pseudo selector entry.
	if out != nil {
		if b, ok := out.(*bool); ok {
			*b = true
		}
	}
	_ = script
	return nil
}

func (f *fakeSession) Title(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeSession) URL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageURL, nil
}

func (f *fakeSession) Screenshot(_ context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// markPresent registers selectors as existing, ready elements.
func (f *fakeSession) markPresent(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		f.present[sel] = true
	}
}

// hasNavigated reports whether a navigation to url was recorded.
func (f *fakeSession) hasNavigated(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.navigated {
		if strings.Contains(u, url) {
			return true
		}
	}
	return false
}
