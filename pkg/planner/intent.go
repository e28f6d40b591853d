package planner

import (
	"strings"

	"github.com/odvcencio/webrunner/pkg/plan"
)

// intentAnalysis classifies a prompt before plan construction. The primary
// intent and risk factors feed the plan's confidence and risk level.
type intentAnalysis struct {
	primary        string
	complexity     string
	estimatedSteps int
	riskFactors    []string
}

var actionWords = []string{
	"click", "type", "enter", "select", "choose", "navigate", "go to", "scroll",
}

func analyzeIntent(lower string) intentAnalysis {
	ia := intentAnalysis{primary: "unknown", complexity: "low", estimatedSteps: 1}

	switch {
	case containsAny(lower, "login", "sign in", "log in"):
		ia.primary = "authentication"
	case containsAny(lower, "search", "find", "look for"):
		ia.primary = "search"
	case containsAny(lower, "buy", "purchase", "add to cart", "checkout"):
		ia.primary = "ecommerce"
	case containsAny(lower, "test", "verify", "check"):
		ia.primary = "testing"
	}

	count := 0
	for _, word := range actionWords {
		if strings.Contains(lower, word) {
			count++
		}
	}
	switch {
	case count > 5:
		ia.complexity = "high"
		ia.estimatedSteps = count * 2
	case count > 2:
		ia.complexity = "medium"
		ia.estimatedSteps = count * 3 / 2
	default:
		ia.complexity = "low"
		ia.estimatedSteps = max(count, 3)
	}

	if containsAny(lower, "payment", "credit card", "checkout") {
		ia.riskFactors = append(ia.riskFactors, "financial_transaction")
	}
	if containsAny(lower, "delete", "remove") {
		ia.riskFactors = append(ia.riskFactors, "destructive_action")
	}
	if containsAny(lower, "admin", "administrator") {
		ia.riskFactors = append(ia.riskFactors, "administrative_action")
	}
	return ia
}

func (ia intentAnalysis) confidence() float64 {
	c := 0.6
	if ia.primary != "unknown" {
		c += 0.25
	}
	c -= 0.05 * float64(len(ia.riskFactors))
	if c < 0.3 {
		c = 0.3
	}
	return c
}

func (ia intentAnalysis) riskLevel() plan.RiskLevel {
	for _, f := range ia.riskFactors {
		if f == "financial_transaction" {
			return plan.RiskHigh
		}
	}
	if len(ia.riskFactors) > 0 {
		return plan.RiskMedium
	}
	return plan.RiskLow
}
