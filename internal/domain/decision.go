package domain

import "time"

// RuleReport is the output of the stateless rule engine: a basic risk score
// built from fixed increments plus the names of the rules that fired.
// The score is intentionally not capped at 1.0; decision fusion expects the
// raw sum.
type RuleReport struct {
	TransactionID string    `json:"transactionId"`
	RiskScore     float64   `json:"riskScore"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	Factors       []string  `json:"factors"`
	Timestamp     time.Time `json:"timestamp"`
}

// Rule factor names emitted by the built-in heuristics.
const (
	RuleHighAmount     = "high_amount"
	RuleElevatedAmount = "elevated_amount"
	RuleRiskyLocation  = "risky_location"
	RuleRiskyMerchant  = "risky_merchant"
)

// RuleLevelForScore maps a rule-engine score to a band. The rule engine uses a
// coarser ladder than the risk engine: HIGH / MEDIUM / LOW only.
func RuleLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Action is the final verdict for a transaction.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionMonitor Action = "MONITOR"
	ActionReview  Action = "REVIEW"
	ActionBlock   Action = "BLOCK"
)

// FinalDecision is the fused verdict from rules, risk scoring and the
// optional statistical model.
type FinalDecision struct {
	FinalRiskScore float64 `json:"finalRiskScore"`
	Action         Action  `json:"action"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
}

// Analysis is the full stored record for one evaluated transaction:
// the transaction itself plus every derived result. Derived fields are never
// mutated after creation.
type Analysis struct {
	ID          string          `json:"id"`
	Transaction *Transaction    `json:"transaction"`
	Rules       RuleReport      `json:"rules"`
	Assessment  RiskAssessment  `json:"assessment"`
	Prediction  *Prediction     `json:"prediction,omitempty"`
	Decision    FinalDecision   `json:"decision"`
	Warnings    []string        `json:"warnings,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
