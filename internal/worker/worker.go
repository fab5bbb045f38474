package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/validate"
)

// Worker consumes ingested transactions from the event bus and runs them
// through the analysis pipeline asynchronously.
type Worker struct {
	pipeline  *Pipeline
	validator *validate.Validator
	bus       domain.EventBus

	mu     sync.Mutex
	sub    domain.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

// Stats reports worker counters since startup.
type Stats struct {
	Processed int64 `json:"processed"`
	Rejected  int64 `json:"rejected"`
	Failed    int64 `json:"failed"`
}

// NewWorker creates a worker bound to the pipeline and bus.
func NewWorker(pipeline *Pipeline, validator *validate.Validator, bus domain.EventBus) *Worker {
	return &Worker{
		pipeline:  pipeline,
		validator: validator,
		bus:       bus,
	}
}

// Start subscribes to the transaction ingestion topic and begins processing.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		return fmt.Errorf("worker already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)

	sub, err := w.bus.Subscribe(workerCtx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicTransactionIngested, err)
	}

	w.sub = sub
	w.cancel = cancel

	slog.Info("worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// Stop unsubscribes and waits for in-flight messages to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.sub == nil {
		w.mu.Unlock()
		return nil
	}

	if err := w.sub.Unsubscribe(); err != nil {
		slog.Warn("failed to unsubscribe", "error", err)
	}
	w.cancel()
	w.sub = nil
	w.cancel = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"rejected", w.rejected.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// GetStats returns a snapshot of the worker's counters.
func (w *Worker) GetStats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Rejected:  w.rejected.Load(),
		Failed:    w.failed.Load(),
	}
}

// begin registers an in-flight message. It holds the mutex so the Add
// cannot race a Stop that has already begun waiting; deliveries that
// arrive after Stop are dropped.
func (w *Worker) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub == nil {
		return false
	}
	w.wg.Add(1)
	return true
}

// handleMessage validates and analyzes one ingested transaction. Invalid
// payloads are rejected and logged, never retried.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	if !w.begin() {
		return nil
	}
	defer w.wg.Done()

	start := time.Now()

	var req domain.TransactionRequest
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		w.rejected.Add(1)
		slog.Warn("failed to decode ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	result := w.validator.Validate(&req)
	if !result.Valid {
		w.rejected.Add(1)
		slog.Warn("ingested transaction rejected",
			"transaction_id", req.ID,
			"errors", result.Errors,
		)
		return nil
	}

	if _, err := w.pipeline.Analyze(ctx, result.Transaction, result.Warnings); err != nil {
		w.failed.Add(1)
		slog.Error("failed to analyze ingested transaction",
			"transaction_id", result.Transaction.ID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	w.processed.Add(1)
	return nil
}
