package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a validated, sanitized transaction record.
// It is immutable once it enters the scoring pipeline: the validator is the
// only component that constructs one from raw input.
type Transaction struct {
	ID string `json:"id"`

	// Amount is a fixed-point decimal with exactly two fractional digits.
	// Monetary comparisons must be exact, so float64 is never used here.
	Amount decimal.Decimal `json:"amount"`

	Merchant string `json:"merchant"`
	Location string `json:"location"`

	// Timestamp is UTC-normalized by the validator.
	Timestamp time.Time `json:"timestamp"`

	// CardNumber is a masked identifier (e.g. "****1234"). It is used only
	// as an opaque correlation key for history and velocity lookups.
	CardNumber string `json:"cardNumber"`

	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

// TransactionRequest is the raw API payload before validation.
// Amount is deliberately untyped: clients send numbers or strings and the
// validator decides, never a float64 round-trip.
type TransactionRequest struct {
	ID          string `json:"id"`
	Amount      any    `json:"amount"`
	Merchant    string `json:"merchant"`
	Location    string `json:"location"`
	Timestamp   string `json:"timestamp"`
	CardNumber  string `json:"card_number"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

// History is a card's prior transactions, ordered most-recent-last.
type History []*Transaction

// Tail returns the last n entries (all of them when fewer exist).
func (h History) Tail(n int) History {
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}
