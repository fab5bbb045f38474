// Package validate turns raw transaction payloads into validated, sanitized
// domain transactions. The scoring pipeline never re-validates: everything
// downstream assumes this package has run.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/domain"
)

var (
	idPattern       = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	locationPattern = regexp.MustCompile(`^[A-Za-z\s,.-]+$`)
	maskedPattern   = regexp.MustCompile(`^\*{4,12}\d{4}$`)
	fullPANPattern  = regexp.MustCompile(`\d{13,19}`)
	markupChars     = regexp.MustCompile(`[<>"']`)
	amountStrip     = regexp.MustCompile(`[^\d.-]`)
)

// Result holds the outcome of validating one transaction.
// Transaction is nil unless Valid is true.
type Result struct {
	Valid       bool                `json:"valid"`
	Errors      []string            `json:"errors,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Transaction *domain.Transaction `json:"-"`
}

// Summary aggregates batch validation results.
type Summary struct {
	Total          int            `json:"totalTransactions"`
	Valid          int            `json:"validTransactions"`
	Invalid        int            `json:"invalidTransactions"`
	ValidationRate float64        `json:"validationRate"`
	CommonErrors   []IssueCount   `json:"commonErrors"`
	CommonWarnings []IssueCount   `json:"commonWarnings"`
}

// IssueCount is one recurring validation issue and how often it occurred.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// Validator checks data integrity, security compliance and business rules
// for incoming transactions.
type Validator struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	blockedMerchants  []string
	allowedCurrencies map[string]bool
}

// New creates a validator with the default limits.
func New() *Validator {
	return &Validator{
		MinAmount:        decimal.RequireFromString("0.01"),
		MaxAmount:        decimal.RequireFromString("50000.00"),
		blockedMerchants: []string{"BLOCKED_MERCHANT_1", "BLOCKED_MERCHANT_2"},
		allowedCurrencies: map[string]bool{
			"USD": true, "EUR": true, "GBP": true, "CAD": true,
		},
	}
}

// Validate checks a raw request and, when it passes, returns the sanitized
// domain transaction. Errors fail the transaction; warnings do not.
func (v *Validator) Validate(req *domain.TransactionRequest) Result {
	var errs, warns []string

	id := v.validateID(req.ID, &errs)
	amount := v.validateAmount(req.Amount, &errs, &warns)
	merchant := v.validateMerchant(req.Merchant, &errs, &warns)
	location := v.validateLocation(req.Location, &errs)
	ts := v.validateTimestamp(req.Timestamp, &errs)
	card := v.validateCardNumber(req.CardNumber, &errs)
	currency := v.validateCurrency(req.Currency, &errs)
	description := sanitizeDescription(req.Description)

	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs, Warnings: warns}
	}

	tx := &domain.Transaction{
		ID:          id,
		Amount:      amount,
		Merchant:    merchant,
		Location:    location,
		Timestamp:   ts,
		CardNumber:  card,
		Currency:    currency,
		Description: description,
	}

	v.applyBusinessRules(tx, &warns)
	v.applySecurityRules(tx, &warns)

	return Result{Valid: true, Warnings: warns, Transaction: tx}
}

// ValidateBatch validates multiple transactions.
func (v *Validator) ValidateBatch(reqs []*domain.TransactionRequest) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, v.Validate(req))
	}
	return results
}

// Summarize builds batch statistics from validation results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}

	var allErrors, allWarnings []string
	for _, r := range results {
		if r.Valid {
			s.Valid++
		}
		allErrors = append(allErrors, r.Errors...)
		allWarnings = append(allWarnings, r.Warnings...)
	}
	s.Invalid = s.Total - s.Valid
	if s.Total > 0 {
		s.ValidationRate = float64(s.Valid) / float64(s.Total) * 100
	}
	s.CommonErrors = topIssues(allErrors, 5)
	s.CommonWarnings = topIssues(allWarnings, 5)
	return s
}

func (v *Validator) validateID(id string, errs *[]string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		*errs = append(*errs, "transaction ID cannot be empty")
		return ""
	}
	if !idPattern.MatchString(id) {
		*errs = append(*errs, "transaction ID contains invalid characters")
		return ""
	}
	if len(id) < 3 || len(id) > 50 {
		*errs = append(*errs, "transaction ID must be between 3 and 50 characters")
		return ""
	}
	return id
}

// validateAmount parses the amount without ever round-tripping through a
// binary float. A non-numeric amount is a hard failure, never a zero default.
func (v *Validator) validateAmount(raw any, errs *[]string, warns *[]string) decimal.Decimal {
	var amount decimal.Decimal
	var err error

	switch a := raw.(type) {
	case json.Number:
		amount, err = decimal.NewFromString(a.String())
	case string:
		amount, err = decimal.NewFromString(amountStrip.ReplaceAllString(strings.TrimSpace(a), ""))
	case nil:
		*errs = append(*errs, "amount is required")
		return decimal.Zero
	default:
		*errs = append(*errs, fmt.Sprintf("invalid amount type: %T", raw))
		return decimal.Zero
	}
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid amount format: %v", err))
		return decimal.Zero
	}

	if amount.LessThan(v.MinAmount) {
		*errs = append(*errs, fmt.Sprintf("amount $%s is below minimum $%s", amount, v.MinAmount))
		return decimal.Zero
	}
	if amount.GreaterThan(v.MaxAmount) {
		*errs = append(*errs, fmt.Sprintf("amount $%s exceeds maximum $%s", amount, v.MaxAmount))
		return decimal.Zero
	}

	if amount.Exponent() < -2 {
		*warns = append(*warns, "amount has more than 2 decimal places, rounding to cents")
		amount = amount.Round(2)
	}
	if amount.GreaterThan(decimal.NewFromInt(10000)) {
		*warns = append(*warns, fmt.Sprintf("large transaction amount: $%s", amount))
	}
	return amount
}

func (v *Validator) validateMerchant(merchant string, errs *[]string, warns *[]string) string {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		*errs = append(*errs, "merchant name cannot be empty")
		return ""
	}
	if len(merchant) > 100 {
		*warns = append(*warns, "merchant name truncated to 100 characters")
		merchant = merchant[:100]
	}

	upper := strings.ToUpper(merchant)
	for _, blocked := range v.blockedMerchants {
		if strings.Contains(upper, blocked) {
			*errs = append(*errs, fmt.Sprintf("transactions with merchant %q are not allowed", merchant))
			return ""
		}
	}

	sanitized := markupChars.ReplaceAllString(merchant, "")
	if sanitized != merchant {
		*warns = append(*warns, "merchant name contained potentially harmful characters")
	}
	return sanitized
}

func (v *Validator) validateLocation(location string, errs *[]string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		*errs = append(*errs, "location cannot be empty")
		return ""
	}
	if len(location) > 200 {
		*errs = append(*errs, "location exceeds maximum length of 200 characters")
		return ""
	}
	if !locationPattern.MatchString(location) {
		*errs = append(*errs, "location contains invalid characters")
		return ""
	}
	return location
}

func (v *Validator) validateTimestamp(raw string, errs *[]string) time.Time {
	if strings.TrimSpace(raw) == "" {
		*errs = append(*errs, "timestamp is required")
		return time.Time{}
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Accept timestamps without an explicit zone as UTC.
		ts, err = time.Parse("2006-01-02T15:04:05", raw)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid timestamp format: %v", err))
			return time.Time{}
		}
		ts = ts.UTC()
	}
	ts = ts.UTC()

	now := time.Now().UTC()
	if ts.After(now.Add(5 * time.Minute)) {
		*errs = append(*errs, "transaction timestamp cannot be in the future")
		return time.Time{}
	}
	if ts.Before(now.Add(-30 * 24 * time.Hour)) {
		*errs = append(*errs, "transaction timestamp is too old (>30 days)")
		return time.Time{}
	}
	return ts
}

func (v *Validator) validateCardNumber(card string, errs *[]string) string {
	card = strings.TrimSpace(card)
	compact := strings.ReplaceAll(card, " ", "")

	if !maskedPattern.MatchString(compact) {
		*errs = append(*errs, "card number must be in masked format (e.g. ****1234)")
		return ""
	}
	if fullPANPattern.MatchString(strings.ReplaceAll(compact, "*", "")) {
		*errs = append(*errs, "full card numbers are not allowed")
		return ""
	}
	// The compacted form is the correlation key for velocity and history,
	// so "**** 1234" and "****1234" must come out identical.
	return compact
}

func (v *Validator) validateCurrency(currency string, errs *[]string) string {
	if currency == "" {
		return "USD"
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !v.allowedCurrencies[currency] {
		*errs = append(*errs, fmt.Sprintf("currency %q is not supported", currency))
		return ""
	}
	return currency
}

func sanitizeDescription(description string) string {
	sanitized := markupChars.ReplaceAllString(strings.TrimSpace(description), "")
	if len(sanitized) > 500 {
		sanitized = sanitized[:500]
	}
	return sanitized
}

func (v *Validator) applyBusinessRules(tx *domain.Transaction, warns *[]string) {
	if tx.Amount.GreaterThan(decimal.NewFromInt(25000)) {
		*warns = append(*warns, "large transaction requires pre-authorization")
	}
	if wd := tx.Timestamp.Weekday(); (wd == time.Saturday || wd == time.Sunday) &&
		tx.Amount.GreaterThan(decimal.NewFromInt(10000)) {
		*warns = append(*warns, "weekend large transaction flagged for review")
	}

	upper := strings.ToUpper(tx.Location)
	domestic := false
	for _, c := range []string{"US", "USA", "UNITED STATES"} {
		if strings.Contains(upper, c) {
			domestic = true
			break
		}
	}
	if !domestic {
		*warns = append(*warns, "international transaction requires location verification")
	}
}

func (v *Validator) applySecurityRules(tx *domain.Transaction, warns *[]string) {
	upper := strings.ToUpper(tx.Merchant)
	for _, kw := range []string{"TEST", "TEMP", "FAKE", "DUMMY", "SAMPLE"} {
		if strings.Contains(upper, kw) {
			*warns = append(*warns, fmt.Sprintf("merchant name contains suspicious keyword: %s", upper))
			break
		}
	}
}

func topIssues(issues []string, n int) []IssueCount {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue]++
	}
	out := make([]IssueCount, 0, len(counts))
	for issue, count := range counts {
		out = append(out, IssueCount{Issue: issue, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
