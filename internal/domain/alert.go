package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert severity levels. BLOCK decisions produce CRITICAL alerts, REVIEW
// decisions produce HIGH alerts.
const (
	AlertSeverityCritical = "CRITICAL"
	AlertSeverityHigh     = "HIGH"
)

// Alert statuses.
const (
	AlertStatusOpen     = "OPEN"
	AlertStatusResolved = "RESOLVED"
)

// Alert is raised for transactions whose final decision is BLOCK or REVIEW.
type Alert struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transactionId"`
	Severity       string          `json:"severity"`
	RiskScore      float64         `json:"riskScore"`
	ActionRequired Action          `json:"actionRequired"`
	Reason         string          `json:"reason"`
	Merchant       string          `json:"merchant"`
	Amount         decimal.Decimal `json:"amount"`
	Location       string          `json:"location"`
	CreatedAt      time.Time       `json:"createdAt"`
	Status         string          `json:"status"`
}

// SeverityForAction returns the alert severity for a decision action, or ""
// when the action does not warrant an alert.
func SeverityForAction(a Action) string {
	switch a {
	case ActionBlock:
		return AlertSeverityCritical
	case ActionReview:
		return AlertSeverityHigh
	default:
		return ""
	}
}
