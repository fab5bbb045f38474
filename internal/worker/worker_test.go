package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/bus"
	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/risk"
	"github.com/fintechco/fraudguard/internal/rules"
	"github.com/fintechco/fraudguard/internal/validate"
	"github.com/fintechco/fraudguard/internal/velocity"
)

// memoryRepo is an in-memory Repository used to observe pipeline writes.
type memoryRepo struct {
	mu       sync.Mutex
	analyses []*domain.Analysis
	alerts   []*domain.Alert
	history  map[string]domain.History
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{history: make(map[string]domain.History)}
}

func (r *memoryRepo) SaveAnalysis(_ context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, a)
	return nil
}

func (r *memoryRepo) GetAnalysis(_ context.Context, id string) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.analyses {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("analysis %s not found", id)
}

func (r *memoryRepo) GetAnalysisByTransaction(_ context.Context, txID string) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.analyses {
		if a.Transaction.ID == txID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("analysis for %s not found", txID)
}

func (r *memoryRepo) ListAnalyses(_ context.Context, _ domain.AnalysisFilter) ([]*domain.Analysis, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Analysis(nil), r.analyses...), len(r.analyses), nil
}

func (r *memoryRepo) HistoryByCard(_ context.Context, cardNumber string, limit int) (domain.History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[cardNumber].Tail(limit), nil
}

func (r *memoryRepo) SaveAlert(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *memoryRepo) ListAlerts(_ context.Context, _ string, _ int) ([]*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Alert(nil), r.alerts...), nil
}

func (r *memoryRepo) Stats(_ context.Context) (*domain.RiskStats, error) {
	return &domain.RiskStats{}, nil
}

func (r *memoryRepo) Ping(_ context.Context) error { return nil }
func (r *memoryRepo) Close() error                 { return nil }

func (r *memoryRepo) savedAnalyses() []*domain.Analysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Analysis(nil), r.analyses...)
}

func (r *memoryRepo) savedAlerts() []*domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Alert(nil), r.alerts...)
}

type testEnv struct {
	pipeline *Pipeline
	repo     *memoryRepo
	bus      *bus.ChannelBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ruleEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	t.Cleanup(func() { ruleEngine.Close() })

	tracker := velocity.NewMemoryTracker(5*time.Minute, 24*time.Hour)
	riskEngine := risk.NewEngine(tracker)

	repo := newMemoryRepo()
	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	pipeline := NewPipeline(ruleEngine, riskEngine, nil, repo, nil, eventBus, time.Second)

	return &testEnv{pipeline: pipeline, repo: repo, bus: eventBus}
}

func testTransaction(id, card string, amount string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:         id,
		Amount:     decimal.RequireFromString(amount),
		Merchant:   "Grocery Store",
		Location:   "New York, US",
		Timestamp:  ts,
		CardNumber: card,
		Currency:   "USD",
	}
}

func TestAnalyzeCleanTransaction(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	analysis, err := env.pipeline.Analyze(context.Background(), testTransaction("tx-001", "****1111", "25.99", ts), nil)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if analysis.ID == "" {
		t.Error("expected a generated analysis ID")
	}
	if analysis.Decision.Action != domain.ActionApprove {
		t.Errorf("Action = %s, want APPROVE", analysis.Decision.Action)
	}
	if analysis.Prediction != nil {
		t.Error("expected no prediction without a model")
	}

	saved := env.repo.savedAnalyses()
	if len(saved) != 1 {
		t.Fatalf("saved %d analyses, want 1", len(saved))
	}
	if saved[0].Transaction.ID != "tx-001" {
		t.Errorf("saved transaction ID = %s, want tx-001", saved[0].Transaction.ID)
	}
	if len(env.repo.savedAlerts()) != 0 {
		t.Error("clean transaction should not raise an alert")
	}
}

func TestAnalyzeRiskyTransactionRaisesAlert(t *testing.T) {
	env := newTestEnv(t)

	alerts := make(chan *domain.Alert, 1)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicAlert, func(_ context.Context, msg *domain.Message) error {
		var alert domain.Alert
		if err := json.Unmarshal(msg.Payload, &alert); err != nil {
			return err
		}
		alerts <- &alert
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	tx := &domain.Transaction{
		ID:         "tx-002",
		Amount:     decimal.RequireFromString("9500.00"),
		Merchant:   "Crypto Casino",
		Location:   "Unknown, Moscow",
		Timestamp:  time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		CardNumber: "****2222",
		Currency:   "USD",
	}

	analysis, err := env.pipeline.Analyze(context.Background(), tx, nil)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if analysis.Decision.Action != domain.ActionBlock && analysis.Decision.Action != domain.ActionReview {
		t.Fatalf("Action = %s, want BLOCK or REVIEW", analysis.Decision.Action)
	}

	saved := env.repo.savedAlerts()
	if len(saved) != 1 {
		t.Fatalf("saved %d alerts, want 1", len(saved))
	}
	alert := saved[0]
	if !strings.HasPrefix(alert.ID, "ALERT_") {
		t.Errorf("alert ID = %s, want ALERT_ prefix", alert.ID)
	}
	if alert.TransactionID != "tx-002" {
		t.Errorf("alert transaction ID = %s, want tx-002", alert.TransactionID)
	}
	if alert.Status != domain.AlertStatusOpen {
		t.Errorf("alert status = %s, want OPEN", alert.Status)
	}
	want := domain.SeverityForAction(analysis.Decision.Action)
	if alert.Severity != want {
		t.Errorf("alert severity = %s, want %s", alert.Severity, want)
	}

	select {
	case published := <-alerts:
		if published.ID != alert.ID {
			t.Errorf("published alert ID = %s, want %s", published.ID, alert.ID)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected alert on the bus")
	}
}

func TestAnalyzePublishesDecision(t *testing.T) {
	env := newTestEnv(t)

	decisions := make(chan *domain.Analysis, 1)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicDecision, func(_ context.Context, msg *domain.Message) error {
		var a domain.Analysis
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		decisions <- &a
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := env.pipeline.Analyze(context.Background(), testTransaction("tx-003", "****3333", "40.00", ts), nil); err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	select {
	case published := <-decisions:
		if published.Transaction.ID != "tx-003" {
			t.Errorf("published transaction ID = %s, want tx-003", published.Transaction.ID)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected decision on the bus")
	}
}

func TestAnalyzeUsesStoredHistory(t *testing.T) {
	env := newTestEnv(t)
	card := "****4444"
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var history domain.History
	for i := 0; i < 12; i++ {
		history = append(history, testTransaction(fmt.Sprintf("hist-%03d", i), card, "100.00", base.Add(time.Duration(i)*time.Hour)))
	}
	env.repo.history[card] = history

	tx := testTransaction("tx-004", card, "10000.00", base.Add(30*24*time.Hour))
	analysis, err := env.pipeline.Analyze(context.Background(), tx, nil)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	for _, f := range analysis.Assessment.Factors {
		if f.Name == domain.FactorAmountAnomaly {
			if f.Value != 1.0 {
				t.Errorf("amount factor value = %v, want 1.0 for a spike against history", f.Value)
			}
			return
		}
	}
	t.Error("expected an amount anomaly factor against the stored history")
}

func TestAnalyzeCarriesWarnings(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	warnings := []string{"international transaction requires location verification"}

	analysis, err := env.pipeline.Analyze(context.Background(), testTransaction("tx-005", "****5555", "30.00", ts), warnings)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(analysis.Warnings) != 1 || analysis.Warnings[0] != warnings[0] {
		t.Errorf("Warnings = %v, want %v", analysis.Warnings, warnings)
	}
}

func TestAnalyzeCanceledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if _, err := env.pipeline.Analyze(ctx, testTransaction("tx-006", "****6666", "30.00", ts), nil); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestAnalyzeBatchOrdersPerCard(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// Four rapid transactions on one card submitted out of order, plus an
	// unrelated card. The velocity factor must reflect arrival in timestamp
	// order, so only the later transactions on the busy card see it.
	items := []BatchItem{
		{Transaction: testTransaction("tx-c1-3", "****7777", "20.00", base.Add(2*time.Minute))},
		{Transaction: testTransaction("tx-other", "****8888", "20.00", base)},
		{Transaction: testTransaction("tx-c1-1", "****7777", "20.00", base)},
		{Transaction: testTransaction("tx-c1-4", "****7777", "20.00", base.Add(3*time.Minute))},
		{Transaction: testTransaction("tx-c1-2", "****7777", "20.00", base.Add(time.Minute))},
	}

	results := env.pipeline.AnalyzeBatch(context.Background(), items)
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}

	byID := make(map[string]*domain.Analysis)
	for i, r := range results {
		if r == nil {
			t.Fatalf("result %d is nil", i)
		}
		if r.Transaction.ID != items[i].Transaction.ID {
			t.Errorf("result %d is for %s, want %s", i, r.Transaction.ID, items[i].Transaction.ID)
		}
		byID[r.Transaction.ID] = r
	}

	hasVelocity := func(a *domain.Analysis) bool {
		for _, f := range a.Assessment.Factors {
			if f.Name == domain.FactorVelocity {
				return true
			}
		}
		return false
	}

	if hasVelocity(byID["tx-c1-1"]) || hasVelocity(byID["tx-c1-2"]) {
		t.Error("first two transactions on the card should not trigger velocity")
	}
	if !hasVelocity(byID["tx-c1-3"]) || !hasVelocity(byID["tx-c1-4"]) {
		t.Error("third and fourth rapid transactions should trigger velocity")
	}
	if hasVelocity(byID["tx-other"]) {
		t.Error("unrelated card should not trigger velocity")
	}
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	env := newTestEnv(t)
	results := env.pipeline.AnalyzeBatch(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("got %d results for empty batch, want 0", len(results))
	}
}

func TestWorkerProcessesIngestedTransactions(t *testing.T) {
	env := newTestEnv(t)
	w := NewWorker(env.pipeline, validate.New(), env.bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()

	req := domain.TransactionRequest{
		ID:         "tx-ingest-001",
		Amount:     "45.50",
		Merchant:   "Coffee Shop",
		Location:   "Seattle, US",
		Timestamp:  time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		CardNumber: "****9999",
		Currency:   "USD",
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	if err := env.bus.Publish(context.Background(), domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.GetStats().Processed == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := w.GetStats().Processed; got != 1 {
		t.Fatalf("Processed = %d, want 1", got)
	}

	if _, err := env.repo.GetAnalysisByTransaction(context.Background(), "tx-ingest-001"); err != nil {
		t.Errorf("expected analysis for ingested transaction: %v", err)
	}
}

func TestWorkerRejectsInvalidPayloads(t *testing.T) {
	env := newTestEnv(t)
	w := NewWorker(env.pipeline, validate.New(), env.bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()

	if err := env.bus.Publish(context.Background(), domain.TopicTransactionIngested, []byte("not json")); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := env.bus.Publish(context.Background(), domain.TopicTransactionIngested, []byte(`{"id":"x"}`)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.GetStats().Rejected == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stats := w.GetStats()
	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}
	if stats.Processed != 0 {
		t.Errorf("Processed = %d, want 0", stats.Processed)
	}
	if len(env.repo.savedAnalyses()) != 0 {
		t.Error("invalid payloads must not be analyzed")
	}
}

func TestWorkerDoubleStart(t *testing.T) {
	env := newTestEnv(t)
	w := NewWorker(env.pipeline, validate.New(), env.bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestWorkerStopIdempotent(t *testing.T) {
	env := newTestEnv(t)
	w := NewWorker(env.pipeline, validate.New(), env.bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
}

func TestWorkerStopDropsLateDeliveries(t *testing.T) {
	env := newTestEnv(t)
	w := NewWorker(env.pipeline, validate.New(), env.bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// A delivery already dispatched when Stop ran must be dropped rather
	// than race the WaitGroup from zero.
	req := domain.TransactionRequest{
		ID:         "tx-late-001",
		Amount:     "45.50",
		Merchant:   "Coffee Shop",
		Location:   "Seattle, US",
		Timestamp:  time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		CardNumber: "****9999",
		Currency:   "USD",
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	msg := &domain.Message{ID: "msg-late-001", Topic: domain.TopicTransactionIngested, Payload: payload}
	if err := w.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage() error: %v", err)
	}

	if got := w.GetStats().Processed; got != 0 {
		t.Errorf("Processed = %d, want 0 after Stop", got)
	}
}
