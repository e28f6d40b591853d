package engine

import (
	"strings"

	"github.com/odvcencio/webrunner/pkg/plan"
)

// recommendations derives advice from a session's failure patterns.
func recommendations(session *plan.Session) []string {
	var recs []string

	var failed []plan.Action
	for _, a := range session.Plan.Actions {
		if a.Status == plan.ActionFailed {
			failed = append(failed, a)
		}
	}

	if len(failed) > 0 {
		notFoundCount := 0
		timeoutCount := 0
		for _, a := range failed {
			msg := strings.ToLower(a.ErrorMessage)
			if strings.Contains(msg, "not find") || strings.Contains(msg, "could not find") {
				notFoundCount++
			}
			if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
				timeoutCount++
			}
		}

		if notFoundCount > 0 {
			recs = append(recs, "Consider using more specific element selectors or data-testid attributes")
		}
		if timeoutCount > 0 {
			recs = append(recs, "Consider increasing timeout values for slow-loading elements")
		}
		if len(failed)*2 > session.TotalActions() {
			recs = append(recs, "High failure rate detected. Consider reviewing the website structure or prompt clarity")
		}
	}

	if session.DurationSec > 0 && session.Plan.EstimatedDurationSec > 0 {
		if float64(session.DurationSec) > float64(session.Plan.EstimatedDurationSec)*1.5 {
			recs = append(recs, "Test took longer than expected. Consider optimizing wait times and action sequences")
		}
	}

	return recs
}
