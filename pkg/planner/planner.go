// Package planner turns natural-language prompts into executable action
// plans using keyword heuristics and canned flows for the scenarios the
// engine sees most: login, search, form fill, cart, and verification.
package planner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/plan"
)

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	passwordPattern = regexp.MustCompile(`(?i)password[:\s]+([^\s,]+)`)
	titlePattern    = regexp.MustCompile(`(?i)title contains ["']([^"']+)["']`)
	searchPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)search for (.+?)(?:\s+and|\s+then|$)`),
		regexp.MustCompile(`(?i)find (.+?)(?:\s+and|\s+then|$)`),
		regexp.MustCompile(`(?i)look for (.+?)(?:\s+and|\s+then|$)`),
	}
)

// Fallback values for flows where the prompt names no concrete data.
const (
	defaultEmail      = "jyoti@test.com"
	defaultPassword   = "123456"
	defaultSearchTerm = "headphones"
	defaultName       = "John Doe"
	defaultFormEmail  = "john.doe@example.com"
	defaultTitleTerm  = "Example"
)

// Planner builds action plans from prompts. It holds no per-plan state and
// is safe for concurrent use.
type Planner struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan expands a prompt into an ordered action plan for websiteURL. Every
// plan starts with a navigation and a settle wait; recognized scenario
// keywords append their canned flows after that.
func (p *Planner) Plan(websiteURL, prompt string) (*plan.ActionPlan, error) {
	lower := strings.ToLower(prompt)

	actions := []plan.Action{
		navigateAction(websiteURL),
		waitAction("Wait for page to load", "3000"),
	}

	if containsAny(lower, "login", "sign in", "log in") {
		actions = append(actions, loginFlow(prompt, lower)...)
	}
	if containsAny(lower, "search", "find", "look for") {
		actions = append(actions, searchFlow(prompt)...)
	}
	if strings.Contains(lower, "fill") && strings.Contains(lower, "form") {
		actions = append(actions, formFlow(lower)...)
	}
	if containsAny(lower, "add to cart", "add first") {
		actions = append(actions, cartFlow()...)
	}
	if strings.Contains(lower, "verify") && strings.Contains(lower, "title") {
		actions = append(actions, verifyTitleAction(prompt))
	}
	if strings.Contains(lower, "screenshot") || len(actions) <= 3 {
		actions = append(actions, plan.NewAction(plan.ActionScreenshot, "Capture final page state", "", ""))
	}

	intent := analyzeIntent(lower)

	result := &plan.ActionPlan{
		ID:         uuid.NewString(),
		WebsiteURL: websiteURL,
		Actions:    actions,
		Confidence: intent.confidence(),
		Reasoning: fmt.Sprintf("Detected %s intent with %s complexity; planned %d actions",
			intent.primary, intent.complexity, len(actions)),
		RiskLevel: intent.riskLevel(),
		CreatedAt: time.Now().UTC(),
	}
	enhance(result)
	result.EstimatedDurationSec = estimateDuration(result.Actions)
	result.Normalize()
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("generated plan invalid: %w", err)
	}

	p.logger.Info(logging.CategoryPlanner, "plan_created", "",
		fmt.Sprintf("planned %d actions for %s", len(result.Actions), websiteURL),
		map[string]any{
			"plan_id":      result.ID,
			"intent":       intent.primary,
			"complexity":   intent.complexity,
			"risk_level":   string(result.RiskLevel),
			"risk_factors": intent.riskFactors,
		})
	return result, nil
}

func navigateAction(url string) plan.Action {
	a := plan.NewAction(plan.ActionNavigate, "Navigate to "+url, url, "")
	a.Screenshot = true
	a.Critical = true
	return a
}

func waitAction(description, ms string) plan.Action {
	a := plan.NewAction(plan.ActionWait, description, "time", ms)
	a.TimeoutMs = 5000
	return a
}

func loginFlow(prompt, lower string) []plan.Action {
	email := defaultEmail
	if strings.Contains(lower, "email") || strings.Contains(prompt, "@") {
		if m := emailPattern.FindString(prompt); m != "" {
			email = m
		}
	}
	password := defaultPassword
	if m := passwordPattern.FindStringSubmatch(prompt); m != nil {
		password = m[1]
	}

	open := plan.NewAction(plan.ActionClick, "Click the login button", "Login", "")
	open.TimeoutMs = 10000
	typeEmail := plan.NewAction(plan.ActionType, "Enter email address", "email", email)
	typeEmail.TimeoutMs = 10000
	typePassword := plan.NewAction(plan.ActionType, "Enter password", "password", password)
	typePassword.TimeoutMs = 10000
	submit := plan.NewAction(plan.ActionClick, "Submit the login form", "Submit", "")
	submit.TimeoutMs = 10000
	submit.Critical = true

	return []plan.Action{
		open, typeEmail, typePassword, submit,
		waitAction("Wait for login to complete", "3000"),
	}
}

func searchFlow(prompt string) []plan.Action {
	term := defaultSearchTerm
	for _, pattern := range searchPatterns {
		if m := pattern.FindStringSubmatch(prompt); m != nil {
			term = strings.TrimSpace(m[1])
			break
		}
	}

	focus := plan.NewAction(plan.ActionClick, "Click the search box", "search", "")
	focus.TimeoutMs = 10000
	typeTerm := plan.NewAction(plan.ActionType, fmt.Sprintf("Search for %s", term), "search", term)
	typeTerm.TimeoutMs = 10000
	submit := plan.NewAction(plan.ActionClick, "Click the search button", "Search", "")
	submit.TimeoutMs = 10000
	submit.Critical = true

	return []plan.Action{
		focus, typeTerm, submit,
		waitAction("Wait for search results", "3000"),
	}
}

func formFlow(lower string) []plan.Action {
	typeName := plan.NewAction(plan.ActionType, "Enter full name", "name", defaultName)
	typeName.TimeoutMs = 10000
	typeEmail := plan.NewAction(plan.ActionType, "Enter email address", "email", defaultFormEmail)
	typeEmail.TimeoutMs = 10000

	actions := []plan.Action{typeName, typeEmail}
	if strings.Contains(lower, "submit") {
		submit := plan.NewAction(plan.ActionClick, "Submit the form", "Submit", "")
		submit.TimeoutMs = 10000
		submit.Critical = true
		actions = append(actions, submit)
	}
	return actions
}

func cartFlow() []plan.Action {
	openProduct := plan.NewAction(plan.ActionClick, "Click the first product", "product", "")
	openProduct.TimeoutMs = 10000
	addToCart := plan.NewAction(plan.ActionClick, "Add the product to the cart", "Add to cart", "")
	addToCart.TimeoutMs = 10000
	addToCart.Critical = true

	return []plan.Action{
		openProduct,
		waitAction("Wait for product page", "2000"),
		addToCart,
	}
}

func verifyTitleAction(prompt string) plan.Action {
	term := defaultTitleTerm
	if m := titlePattern.FindStringSubmatch(prompt); m != nil {
		term = m[1]
	}
	a := plan.NewAction(plan.ActionVerify, fmt.Sprintf("Verify page title contains %q", term), "title", term)
	a.TimeoutMs = 10000
	return a
}

// enhance inserts stability waits before critical steps and flags critical
// interactions for screenshot capture.
func enhance(p *plan.ActionPlan) {
	enhanced := make([]plan.Action, 0, len(p.Actions))
	for i, a := range p.Actions {
		if a.Critical && i > 0 {
			enhanced = append(enhanced, waitAction("Wait for page stability", "1000"))
		}
		if a.Critical && (a.Kind == plan.ActionClick || a.Kind == plan.ActionType) {
			a.Screenshot = true
		}
		enhanced = append(enhanced, a)
	}
	p.Actions = enhanced
}

func estimateDuration(actions []plan.Action) int {
	total := 0
	for i := range actions {
		a := &actions[i]
		switch a.Kind {
		case plan.ActionWait:
			if ms, ok := parseMillis(a.Value); ok {
				total += (ms + 999) / 1000
			} else {
				total += 1
			}
		case plan.ActionNavigate:
			total += 5
		default:
			total += 2
		}
	}
	return total
}

func parseMillis(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
