package plan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Normalize clamps and backfills action parameters so the engine never sees
// an out-of-range timeout or a zero retry budget. It mutates the plan in
// place and is idempotent.
func (p *ActionPlan) Normalize() {
	for i := range p.Actions {
		normalizeAction(&p.Actions[i])
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	switch p.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		p.RiskLevel = RiskLow
	}
}

func normalizeAction(a *Action) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Description == "" {
		a.Description = fmt.Sprintf("Execute %s action", a.Kind)
	}
	if a.TimeoutMs < MinActionTimeoutMs {
		a.TimeoutMs = MinActionTimeoutMs
	}
	if a.TimeoutMs > MaxActionTimeoutMs {
		a.TimeoutMs = MaxActionTimeoutMs
	}
	if a.RetryLimit < 1 {
		a.RetryLimit = 1
	}
	// Critical steps get a bigger retry budget so one flaky frame does not
	// abort the whole run.
	if a.Critical && a.RetryLimit < 3 {
		a.RetryLimit = 3
	}
	if a.Status == "" {
		a.Status = ActionPending
	}
}

// Validate checks structural requirements that Normalize cannot repair.
func (p *ActionPlan) Validate() error {
	if strings.TrimSpace(p.WebsiteURL) == "" {
		return fmt.Errorf("plan missing website url")
	}
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan has no actions")
	}
	for i := range p.Actions {
		a := &p.Actions[i]
		if !validKind(a.Kind) {
			return fmt.Errorf("action %d: unsupported kind %q", i, a.Kind)
		}
		switch a.Kind {
		case ActionNavigate:
			if a.Target == "" && a.Value == "" {
				return fmt.Errorf("action %d: navigate requires a target url", i)
			}
		case ActionClick, ActionHover:
			if a.Target == "" {
				return fmt.Errorf("action %d: %s requires a target", i, a.Kind)
			}
		case ActionType, ActionSelect:
			if a.Target == "" {
				return fmt.Errorf("action %d: %s requires a target", i, a.Kind)
			}
		}
	}
	return nil
}

func validKind(k ActionKind) bool {
	for _, kind := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
