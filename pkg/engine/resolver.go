package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/webrunner/pkg/driver"
	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/plan"
)

// Resolver maps a symbolic target description to a concrete, interaction-ready
// element. Candidates are ordered highest-specificity first: an explicit
// selector or test hook beats a fuzzy text match, which keeps false positives
// down on pages that reuse generic labels.
type Resolver struct {
	logger *logging.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *logging.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the first candidate selector whose element exists, is
// visible, and passes the kind-specific readiness checks. Candidates that
// error during probing are skipped, not fatal. Exhausting the list yields a
// *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, sess driver.Session, target, value string, kind plan.ActionKind) (string, error) {
	for i, candidate := range r.candidates(target, value, kind) {
		count, err := sess.Count(ctx, candidate)
		if err != nil {
			r.logger.Debug(logging.CategoryResolver, "candidate_error", sess.ID(),
				"candidate probe failed", map[string]any{"selector": candidate, "error": err.Error()})
			continue
		}
		if count == 0 {
			continue
		}
		ready, err := r.isReady(ctx, sess, candidate, kind)
		if err != nil {
			r.logger.Debug(logging.CategoryResolver, "readiness_error", sess.ID(),
				"readiness check failed", map[string]any{"selector": candidate, "error": err.Error()})
			continue
		}
		if ready {
			recordResolverDepth(i)
			r.logger.Info(logging.CategoryResolver, "element_resolved", sess.ID(),
				"resolved target", map[string]any{"target": target, "selector": candidate, "depth": i})
			return candidate, nil
		}
	}
	return "", &ResolutionError{Target: target, Kind: kind}
}

// candidates builds the ordered selector list for a target and action kind.
// Selectors starting with "//" are XPath; everything else is CSS.
func (r *Resolver) candidates(target, value string, kind plan.ActionKind) []string {
	var out []string

	if looksLikeSelector(target) {
		out = append(out, target)
	}

	lower := strings.ToLower(target)
	slug := strings.ReplaceAll(lower, " ", "-")

	switch kind {
	case plan.ActionClick:
		out = append(out,
			fmt.Sprintf("//button[contains(normalize-space(.), %s)]", xpathString(target)),
			fmt.Sprintf("//a[contains(normalize-space(.), %s)]", xpathString(target)),
			fmt.Sprintf("[data-testid*=%s]", cssString(lower)),
			fmt.Sprintf("[aria-label*=%s]", cssString(target)),
			fmt.Sprintf("input[value*=%s]", cssString(target)),
			fmt.Sprintf("//*[self::button or self::a or self::span or self::label][contains(normalize-space(.), %s)]", xpathString(target)),
		)
		if slug != "" {
			out = append(out, "."+slug, "#"+slug)
		}

	case plan.ActionType:
		out = append(out,
			fmt.Sprintf("input[placeholder*=%s]", cssString(target)),
			fmt.Sprintf("input[name*=%s]", cssString(lower)),
			fmt.Sprintf("input[id*=%s]", cssString(lower)),
			fmt.Sprintf("textarea[placeholder*=%s]", cssString(target)),
			fmt.Sprintf("[data-testid*=%s]", cssString(lower)),
		)
		// Narrow by the input subtype the target or value implies before
		// falling back to any text field.
		switch inputSubtype(lower, value) {
		case "email":
			out = append(out, "input[type='email']")
		case "password":
			out = append(out, "input[type='password']")
		case "search":
			out = append(out, "input[type='search']", "input[name*='search']", "input[name='q']")
		}
		out = append(out, "input[type='text']", "textarea")

	case plan.ActionSelect:
		out = append(out,
			fmt.Sprintf("select[name*=%s]", cssString(lower)),
			fmt.Sprintf("select[id*=%s]", cssString(lower)),
			fmt.Sprintf("[data-testid*=%s] select", cssString(lower)),
			"select",
		)

	default:
		// Scroll, hover, wait and verify targets match on visible text as a
		// mid-priority candidate.
		out = append(out,
			fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathString(target)),
		)
		if slug != "" {
			out = append(out, "."+slug, "#"+slug)
		}
	}

	// Generic fallbacks for every kind.
	out = append(out,
		fmt.Sprintf("[title*=%s]", cssString(target)),
		fmt.Sprintf("[alt*=%s]", cssString(target)),
		fmt.Sprintf("[data-cy*=%s]", cssString(lower)),
		fmt.Sprintf("[data-test*=%s]", cssString(lower)),
	)

	return out
}

// isReady applies kind-specific readiness checks to the first match.
func (r *Resolver) isReady(ctx context.Context, sess driver.Session, selector string, kind plan.ActionKind) (bool, error) {
	visible, err := sess.IsVisible(ctx, selector)
	if err != nil || !visible {
		return false, err
	}

	switch kind {
	case plan.ActionClick, plan.ActionType, plan.ActionSelect:
		enabled, err := sess.IsEnabled(ctx, selector)
		if err != nil || !enabled {
			return false, err
		}
	}

	if kind == plan.ActionType {
		editable, err := sess.IsEditable(ctx, selector)
		if err != nil || !editable {
			return false, err
		}
	}

	return true, nil
}

// looksLikeSelector reports whether target reads as a structural selector
// rather than human text.
func looksLikeSelector(target string) bool {
	if target == "" {
		return false
	}
	return strings.ContainsAny(target, "#.[>:") || strings.HasPrefix(target, "//")
}

// inputSubtype guesses the input type a symbolic target refers to from
// keywords in the target or the shape of the value being typed.
func inputSubtype(lowerTarget, value string) string {
	switch {
	case strings.Contains(lowerTarget, "email") || strings.Contains(value, "@"):
		return "email"
	case strings.Contains(lowerTarget, "password"):
		return "password"
	case strings.Contains(lowerTarget, "search"):
		return "search"
	}
	return ""
}

// cssString quotes a value for use inside a CSS attribute selector.
func cssString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// xpathString quotes a value as an XPath string literal, switching quote
// style when the value itself contains quotes.
func xpathString(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
