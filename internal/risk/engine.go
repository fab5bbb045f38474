// Package risk runs the weighted risk factor analyzers and produces a
// composite assessment for a transaction against its card history.
package risk

import (
	"context"
	"math"

	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/velocity"
)

// Engine runs all analyzers and aggregates their factors into a single
// assessment. The velocity tracker is the only mutable collaborator;
// everything else is a pure function of the transaction and its history.
type Engine struct {
	tracker velocity.Tracker
}

// NewEngine creates a risk engine backed by the given velocity tracker.
func NewEngine(tracker velocity.Tracker) *Engine {
	return &Engine{tracker: tracker}
}

// Score runs all six analyzers and combines their factors.
// The composite score is the sum of weight*value over active factors,
// capped at 1.0.
func (e *Engine) Score(ctx context.Context, tx *domain.Transaction, history domain.History) *domain.RiskAssessment {
	factors := make([]domain.RiskFactor, 0, 6)

	candidates := []*domain.RiskFactor{
		analyzeAmountAnomaly(tx, history),
		e.analyzeVelocity(ctx, tx),
		analyzeLocationRisk(tx),
		analyzeTimeAnomaly(tx),
		analyzeMerchantRisk(tx),
		analyzeUsagePattern(tx, history),
	}
	for _, f := range candidates {
		if f != nil {
			factors = append(factors, *f)
		}
	}

	score := 0.0
	for _, f := range factors {
		score += f.Weight * f.Value
	}
	score = math.Min(1.0, score)

	return &domain.RiskAssessment{
		RiskScore:       score,
		RiskLevel:       domain.LevelForScore(score),
		Factors:         factors,
		Recommendations: recommendations(score, factors),
		Confidence:      confidence(factors),
	}
}

// recommendations produces operator guidance from the score band plus
// factor-specific additions.
func recommendations(score float64, factors []domain.RiskFactor) []string {
	recs := make([]string, 0, 5)

	switch {
	case score >= 0.8:
		recs = append(recs,
			"BLOCK transaction immediately",
			"Contact cardholder for verification",
			"Flag account for manual review",
		)
	case score >= 0.6:
		recs = append(recs,
			"Require additional authentication",
			"Monitor account closely",
		)
	case score >= 0.4:
		recs = append(recs,
			"Send SMS verification to cardholder",
			"Log for pattern analysis",
		)
	}

	for _, f := range factors {
		switch f.Name {
		case domain.FactorVelocity:
			recs = append(recs, "Implement temporary transaction limits")
		case domain.FactorLocation:
			recs = append(recs, "Verify location with cardholder")
		case domain.FactorAmountAnomaly:
			recs = append(recs, "Confirm large purchase authorization")
		}
	}

	return recs
}

// confidence grows with the total weight of active factors plus a small
// per-factor bonus. Zero factors yields a fixed 0.3 floor: a clean-looking
// transaction is itself a weak-confidence signal.
func confidence(factors []domain.RiskFactor) float64 {
	if len(factors) == 0 {
		return 0.3
	}

	totalWeight := 0.0
	for _, f := range factors {
		totalWeight += f.Weight
	}
	bonus := math.Min(0.2, float64(len(factors))*0.05)
	return math.Min(1.0, totalWeight+bonus)
}
