// Package worker runs the end-to-end analysis pipeline for single
// transactions, batches and asynchronous bus consumption.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/fusion"
	"github.com/fintechco/fraudguard/internal/model"
	"github.com/fintechco/fraudguard/internal/risk"
	"github.com/fintechco/fraudguard/internal/rules"
)

const historyCacheTTL = 5 * time.Minute

// Pipeline evaluates validated transactions end to end: history lookup,
// rule evaluation, risk scoring, optional model prediction, decision fusion,
// persistence and alerting. Scoring always completes; the repository, cache,
// bus and model are collaborators whose failures degrade but never abort an
// analysis.
type Pipeline struct {
	rules     *rules.Engine
	risk      *risk.Engine
	predictor model.Predictor

	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus

	modelTimeout time.Duration
	alertSeq     atomic.Int64
}

// NewPipeline creates the analysis pipeline. predictor may be nil when no
// model is wired.
func NewPipeline(
	ruleEngine *rules.Engine,
	riskEngine *risk.Engine,
	predictor model.Predictor,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	modelTimeout time.Duration,
) *Pipeline {
	if modelTimeout <= 0 {
		modelTimeout = 2 * time.Second
	}
	return &Pipeline{
		rules:        ruleEngine,
		risk:         riskEngine,
		predictor:    predictor,
		repo:         repo,
		cache:        cache,
		bus:          bus,
		modelTimeout: modelTimeout,
	}
}

// Analyze runs the full pipeline for one validated transaction. Warnings
// from validation are carried through onto the stored analysis.
func (p *Pipeline) Analyze(ctx context.Context, tx *domain.Transaction, warnings []string) (*domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	history := p.loadHistory(ctx, tx.CardNumber)

	ruleReport := p.rules.Evaluate(tx)
	assessment := p.risk.Score(ctx, tx, history)
	prediction := p.predict(ctx, tx)

	decision := fusion.Decide(ruleReport, assessment, prediction)

	analysis := &domain.Analysis{
		ID:          uuid.New().String(),
		Transaction: tx,
		Rules:       ruleReport,
		Assessment:  *assessment,
		Prediction:  prediction,
		Decision:    decision,
		Warnings:    warnings,
		CreatedAt:   time.Now().UTC(),
	}

	if err := p.repo.SaveAnalysis(ctx, analysis); err != nil {
		slog.Error("failed to save analysis",
			"transaction_id", tx.ID,
			"error", err,
		)
	} else if p.cache != nil {
		// The stored transaction is now part of the card's history.
		_ = p.cache.Delete(ctx, "history:"+tx.CardNumber)
	}

	p.publishDecision(ctx, analysis)
	p.raiseAlert(ctx, analysis)

	slog.Info("transaction analyzed",
		"transaction_id", tx.ID,
		"risk_level", assessment.RiskLevel,
		"action", decision.Action,
		"final_score", decision.FinalRiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return analysis, nil
}

// loadHistory fetches the card's prior transactions, preferring the cache.
// A storage failure degrades to an empty history.
func (p *Pipeline) loadHistory(ctx context.Context, cardNumber string) domain.History {
	if p.cache != nil {
		h, err := p.cache.GetHistory(ctx, cardNumber)
		if err != nil {
			slog.Warn("history cache read failed",
				"card_number", cardNumber,
				"error", err,
			)
		} else if h != nil {
			return h
		}
	}

	h, err := p.repo.HistoryByCard(ctx, cardNumber, risk.HistoryLookback)
	if err != nil {
		slog.Warn("history lookup failed",
			"card_number", cardNumber,
			"error", err,
		)
		return nil
	}

	if p.cache != nil && h != nil {
		_ = p.cache.SetHistory(ctx, cardNumber, h, historyCacheTTL)
	}
	return h
}

// predict asks the model for a verdict under a bounded timeout. Any failure,
// including an untrained model, yields nil.
func (p *Pipeline) predict(ctx context.Context, tx *domain.Transaction) *domain.Prediction {
	if p.predictor == nil {
		return nil
	}

	predictCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	defer cancel()

	predictions, err := p.predictor.Predict(predictCtx, []*domain.Transaction{tx})
	if err != nil {
		if !errors.Is(err, model.ErrUntrained) {
			slog.Warn("model prediction unavailable",
				"transaction_id", tx.ID,
				"error", err,
			)
		}
		return nil
	}
	if len(predictions) != 1 {
		return nil
	}
	return predictions[0]
}

func (p *Pipeline) publishDecision(ctx context.Context, analysis *domain.Analysis) {
	if p.bus == nil {
		return
	}
	payload, _ := json.Marshal(analysis)
	if err := p.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision",
			"transaction_id", analysis.Transaction.ID,
			"error", err,
		)
	}
}

// raiseAlert creates and persists an alert for BLOCK and REVIEW decisions.
func (p *Pipeline) raiseAlert(ctx context.Context, analysis *domain.Analysis) {
	severity := domain.SeverityForAction(analysis.Decision.Action)
	if severity == "" {
		return
	}

	tx := analysis.Transaction
	alert := &domain.Alert{
		ID:             fmt.Sprintf("ALERT_%06d", p.alertSeq.Add(1)),
		TransactionID:  tx.ID,
		Severity:       severity,
		RiskScore:      analysis.Decision.FinalRiskScore,
		ActionRequired: analysis.Decision.Action,
		Reason:         analysis.Decision.Reason,
		Merchant:       tx.Merchant,
		Amount:         tx.Amount,
		Location:       tx.Location,
		CreatedAt:      time.Now().UTC(),
		Status:         domain.AlertStatusOpen,
	}

	if err := p.repo.SaveAlert(ctx, alert); err != nil {
		slog.Error("failed to save alert",
			"alert_id", alert.ID,
			"transaction_id", tx.ID,
			"error", err,
		)
	}

	if p.bus != nil {
		payload, _ := json.Marshal(alert)
		if err := p.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	slog.Warn("fraud alert created",
		"alert_id", alert.ID,
		"transaction_id", tx.ID,
		"severity", severity,
		"action", analysis.Decision.Action,
	)
}
