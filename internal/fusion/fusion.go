// Package fusion combines the independent scoring subsystems into a single
// final verdict for a transaction.
package fusion

import (
	"math"

	"github.com/fintechco/fraudguard/internal/domain"
)

// Weighting when a statistical prediction is available.
const (
	mlRuleWeight       = 0.4
	mlAssessmentWeight = 0.3
	mlModelWeight      = 0.3
)

// Weighting when scoring runs without a prediction. The two formulas are
// distinct on purpose: the missing model weight is not redistributed
// silently, the blend itself changes.
const (
	baseRuleWeight       = 0.6
	baseAssessmentWeight = 0.4
)

// Decide fuses the rule score, the risk assessment and an optional model
// prediction into a final decision. Thresholds are checked in descending
// order; the first match wins.
func Decide(rules domain.RuleReport, assessment *domain.RiskAssessment, prediction *domain.Prediction) domain.FinalDecision {
	var final float64
	if prediction != nil {
		final = mlRuleWeight*rules.RiskScore +
			mlAssessmentWeight*assessment.RiskScore +
			mlModelWeight*prediction.CombinedFraudProbability
	} else {
		final = baseRuleWeight*rules.RiskScore +
			baseAssessmentWeight*assessment.RiskScore
	}

	action, reason := actionForScore(final)

	return domain.FinalDecision{
		FinalRiskScore: round3(final),
		Action:         action,
		Reason:         reason,
		Confidence:     assessment.Confidence,
	}
}

func actionForScore(score float64) (domain.Action, string) {
	switch {
	case score >= 0.8:
		return domain.ActionBlock, "Critical fraud risk detected"
	case score >= 0.6:
		return domain.ActionReview, "High fraud risk - manual review required"
	case score >= 0.4:
		return domain.ActionMonitor, "Medium fraud risk - enhanced monitoring"
	default:
		return domain.ActionApprove, "Low fraud risk"
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
