// Package rules provides the stateless rule engine: fixed threshold and
// keyword heuristics over a single transaction, plus optional operator-defined
// CEL rules.
package rules

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/domain"
)

// Fixed score increments for the built-in heuristics. The basic score is
// deliberately not capped at 1.0; decision fusion consumes the raw sum.
var (
	highAmountThreshold     = decimal.NewFromInt(5000)
	elevatedAmountThreshold = decimal.NewFromInt(2000)
)

const (
	highAmountIncrement     = 0.4
	elevatedAmountIncrement = 0.2
	riskyLocationIncrement  = 0.4
	riskyMerchantIncrement  = 0.3
)

// CustomRule is an operator-defined CEL rule layered on top of the built-in
// heuristics. Its weighted score is added to the basic rule score and its ID
// is appended to the factor list when it fires.
type CustomRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

type compiledRule struct {
	config  *CustomRule
	program cel.Program
}

// Engine evaluates transactions against the built-in heuristics and any
// loaded custom rules. Evaluation is a pure function of the transaction:
// no history, no side effects.
type Engine struct {
	mu     sync.RWMutex
	env    *cel.Env
	custom map[string]*compiledRule
}

// NewEngine creates a rule engine with no custom rules loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("currency", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:    env,
		custom: make(map[string]*compiledRule),
	}, nil
}

// Evaluate runs all checks against a single validated transaction.
func (e *Engine) Evaluate(tx *domain.Transaction) domain.RuleReport {
	report := domain.RuleReport{
		TransactionID: tx.ID,
		Timestamp:     tx.Timestamp,
	}

	if tx.Amount.GreaterThan(highAmountThreshold) {
		report.RiskScore += highAmountIncrement
		report.Factors = append(report.Factors, domain.RuleHighAmount)
	} else if tx.Amount.GreaterThan(elevatedAmountThreshold) {
		report.RiskScore += elevatedAmountIncrement
		report.Factors = append(report.Factors, domain.RuleElevatedAmount)
	}

	if containsAny(tx.Location, highRiskLocations) {
		report.RiskScore += riskyLocationIncrement
		report.Factors = append(report.Factors, domain.RuleRiskyLocation)
	}

	if containsAny(tx.Merchant, highRiskMerchants) {
		report.RiskScore += riskyMerchantIncrement
		report.Factors = append(report.Factors, domain.RuleRiskyMerchant)
	}

	e.evaluateCustom(tx, &report)

	report.RiskLevel = domain.RuleLevelForScore(report.RiskScore)
	return report
}

// evaluateCustom adds weighted scores from loaded CEL rules. A rule that
// fails to evaluate is treated as not fired.
func (e *Engine) evaluateCustom(tx *domain.Transaction, report *domain.RuleReport) {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.custom))
	for _, r := range e.custom {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return
	}

	amount, _ := tx.Amount.Float64()
	activation := map[string]any{
		"amount":   amount,
		"merchant": tx.Merchant,
		"location": tx.Location,
		"hour":     int64(tx.Timestamp.Hour()),
		"weekday":  int64(tx.Timestamp.Weekday()),
		"currency": tx.Currency,
	}

	for _, rule := range rules {
		start := time.Now()
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			slog.Warn("custom rule evaluation failed",
				"rule_id", rule.config.ID,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		score := toScore(out)
		if score > 0 {
			report.RiskScore += rule.config.Weight * score
			report.Factors = append(report.Factors, rule.config.ID)
		}
	}
}

// LoadRule compiles and loads a custom rule into the engine.
func (e *Engine) LoadRule(cfg *CustomRule) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple custom rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*CustomRule) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := e.LoadRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces all loaded custom rules atomically.
func (e *Engine) ReloadRules(configs []*CustomRule) error {
	newRules := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = newRules
	return nil
}

// RulesCount returns the number of loaded custom rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.custom)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *CustomRule) (*compiledRule, error) {
	if cfg == nil || cfg.ID == "" {
		return nil, fmt.Errorf("rule config with ID is required")
	}
	if cfg.Weight < 0 || cfg.Weight > 1 {
		return nil, fmt.Errorf("rule %s: weight must be in [0,1], got %v", cfg.ID, cfg.Weight)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func containsAny(field string, keywords []string) bool {
	upper := strings.ToUpper(field)
	for _, kw := range keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
