package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/domain"
)

// HistoryLookback bounds how many prior transactions the amount analyzer
// considers. Independent from the velocity retention period.
const HistoryLookback = 30

// usageLookback bounds how many prior merchants the usage analyzer compares
// against.
const usageLookback = 20

var (
	amountHighNoHistory     = decimal.NewFromInt(5000)
	amountElevatedNoHistory = decimal.NewFromInt(2000)

	meanMultiplier = decimal.NewFromInt(3)
	maxMultiplier  = decimal.RequireFromString("1.5")
	valueDivisor   = decimal.NewFromInt(5)
)

// Location tiers. Indicator keywords outrank monitored countries when both
// match.
var (
	locationIndicators = []string{"UNKNOWN", "OFFSHORE", "SANCTIONED"}
	monitoredCountries = []string{"RU", "CN", "IR", "KP", "SY", "RUSSIA", "CHINA", "IRAN", "MOSCOW", "BEIJING"}
)

var riskMerchantCategories = []string{
	"CASINO", "GAMBLING", "CRYPTO", "ADULT",
	"UNKNOWN MERCHANT", "CASH ADVANCE", "ATM CASH", "WIRE TRANSFER",
}

func newFactor(kind domain.FactorKind, value float64, description string) *domain.RiskFactor {
	return &domain.RiskFactor{
		Name:        kind,
		Weight:      kind.Weight(),
		Value:       value,
		Description: description,
	}
}

// analyzeAmountAnomaly flags amounts far outside the card's spending pattern.
// Without history it falls back to graduated absolute thresholds.
func analyzeAmountAnomaly(tx *domain.Transaction, history domain.History) *domain.RiskFactor {
	current := tx.Amount

	if len(history) == 0 {
		if current.GreaterThan(amountHighNoHistory) {
			return newFactor(domain.FactorAmountAnomaly, 0.9,
				fmt.Sprintf("Very high amount $%s with no transaction history", current))
		}
		if current.GreaterThan(amountElevatedNoHistory) {
			return newFactor(domain.FactorAmountAnomaly, 0.6,
				fmt.Sprintf("High amount $%s with no transaction history", current))
		}
		return nil
	}

	recent := history.Tail(HistoryLookback)
	sum := decimal.Zero
	maxAmount := decimal.Zero
	for _, prior := range recent {
		sum = sum.Add(prior.Amount)
		if prior.Amount.GreaterThan(maxAmount) {
			maxAmount = prior.Amount
		}
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(recent))))
	if mean.IsZero() {
		return nil
	}

	if current.GreaterThan(mean.Mul(meanMultiplier)) && current.GreaterThan(maxAmount.Mul(maxMultiplier)) {
		ratio, _ := current.Div(mean.Mul(valueDivisor)).Float64()
		multiple, _ := current.Div(mean).Float64()
		return newFactor(domain.FactorAmountAnomaly, math.Min(1.0, ratio),
			fmt.Sprintf("Amount $%s is %.1fx higher than average", current, multiple))
	}
	return nil
}

// analyzeVelocity records the transaction in the tracker and flags rapid
// successive card use. The tracker write happens on every call whether or
// not a factor is emitted. A tracker failure degrades to no factor so a
// storage outage cannot stall scoring.
func (e *Engine) analyzeVelocity(ctx context.Context, tx *domain.Transaction) *domain.RiskFactor {
	count, err := e.tracker.RecordAndCount(ctx, tx.CardNumber, tx.Timestamp)
	if err != nil {
		slog.Warn("velocity tracking unavailable",
			"transaction_id", tx.ID,
			"error", err,
		)
		return nil
	}

	if count >= 3 {
		return newFactor(domain.FactorVelocity, math.Min(1.0, float64(count)/5.0),
			fmt.Sprintf("%d transactions in last 5 minutes", count))
	}
	return nil
}

// analyzeLocationRisk matches the location against two keyword tiers and
// takes the higher value when both match.
func analyzeLocationRisk(tx *domain.Transaction) *domain.RiskFactor {
	location := strings.ToUpper(tx.Location)

	value := 0.0
	description := ""
	for _, indicator := range locationIndicators {
		if strings.Contains(location, indicator) {
			value = 0.9
			description = fmt.Sprintf("Transaction from high-risk location: %s", location)
			break
		}
	}
	for _, country := range monitoredCountries {
		if strings.Contains(location, country) {
			if 0.7 > value {
				value = 0.7
				description = fmt.Sprintf("Transaction from monitored country: %s", location)
			}
			break
		}
	}

	if value > 0 {
		return newFactor(domain.FactorLocation, value, description)
	}
	return nil
}

// analyzeTimeAnomaly flags transactions in the 02:00-05:59 window.
func analyzeTimeAnomaly(tx *domain.Transaction) *domain.RiskFactor {
	hour := tx.Timestamp.Hour()
	if hour >= 2 && hour <= 5 {
		return newFactor(domain.FactorTime, 0.6,
			fmt.Sprintf("Transaction at unusual hour: %02d:00", hour))
	}
	return nil
}

// analyzeMerchantRisk matches the merchant against high-risk categories.
func analyzeMerchantRisk(tx *domain.Transaction) *domain.RiskFactor {
	merchant := strings.ToUpper(tx.Merchant)
	for _, category := range riskMerchantCategories {
		if strings.Contains(merchant, category) {
			return newFactor(domain.FactorMerchant, 0.7,
				fmt.Sprintf("High-risk merchant category: %s", merchant))
		}
	}
	return nil
}

// analyzeUsagePattern flags a merchant whose word set is disjoint from every
// recent historical merchant, once the card has enough history to make that
// signal meaningful.
func analyzeUsagePattern(tx *domain.Transaction, history domain.History) *domain.RiskFactor {
	if len(history) < 5 {
		return nil
	}

	currentMerchant := strings.ToUpper(tx.Merchant)
	currentWords := wordSet(currentMerchant)

	recent := history.Tail(usageLookback)
	historicalWords := make(map[string]struct{})
	for _, prior := range recent {
		for w := range wordSet(strings.ToUpper(prior.Merchant)) {
			historicalWords[w] = struct{}{}
		}
	}

	if len(recent) > 10 && disjoint(currentWords, historicalWords) {
		return newFactor(domain.FactorUsagePattern, 0.5,
			fmt.Sprintf("First transaction with merchant type: %s", currentMerchant))
	}
	return nil
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func disjoint(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return false
		}
	}
	return true
}
