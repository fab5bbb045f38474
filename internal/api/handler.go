package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/model"
	"github.com/fintechco/fraudguard/internal/repository"
	"github.com/fintechco/fraudguard/internal/rules"
	"github.com/fintechco/fraudguard/internal/validate"
	"github.com/fintechco/fraudguard/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline  *worker.Pipeline
	validator *validate.Validator
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	rules     *rules.Engine
	predictor model.Predictor
	trainer   model.Trainer
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(
	pipeline *worker.Pipeline,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	ruleEngine *rules.Engine,
	predictor model.Predictor,
	trainer model.Trainer,
	version string,
) *Handler {
	return &Handler{
		pipeline:  pipeline,
		validator: validate.New(),
		repo:      repo,
		cache:     cache,
		bus:       bus,
		rules:     ruleEngine,
		predictor: predictor,
		trainer:   trainer,
		version:   version,
	}
}

// AnalyzeResponse is the response for POST /api/transactions.
type AnalyzeResponse struct {
	Analysis *domain.Analysis `json:"analysis"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// AnalyzeTransaction handles POST /api/transactions requests.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	req, ok := decodeTransactionRequest(w, r)
	if !ok {
		return
	}

	result := h.validator.Validate(req)
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "transaction failed validation",
			"errors": result.Errors,
		})
		return
	}

	analysis, err := h.pipeline.Analyze(ctx, result.Transaction, result.Warnings)
	if err != nil {
		slog.Error("transaction analysis failed",
			"transaction_id", result.Transaction.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "transaction analysis failed",
		})
		return
	}

	resp := AnalyzeResponse{Analysis: analysis}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the request body for batch analysis and validation.
type BatchRequest struct {
	Transactions []*domain.TransactionRequest `json:"transactions"`
}

// BatchResult is the per-transaction outcome in a batch response.
type BatchResult struct {
	Valid    bool             `json:"valid"`
	Errors   []string         `json:"errors,omitempty"`
	Analysis *domain.Analysis `json:"analysis,omitempty"`
}

// AnalyzeBatch handles POST /api/transactions/batch requests. Invalid
// transactions are reported per entry; valid ones are analyzed with
// per-card ordering preserved.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := decodeBatchRequest(w, r)
	if !ok {
		return
	}

	results := make([]BatchResult, len(req.Transactions))
	var items []worker.BatchItem
	var itemIndex []int

	for i, txReq := range req.Transactions {
		vr := h.validator.Validate(txReq)
		if !vr.Valid {
			results[i] = BatchResult{Valid: false, Errors: vr.Errors}
			continue
		}
		results[i] = BatchResult{Valid: true}
		items = append(items, worker.BatchItem{Transaction: vr.Transaction, Warnings: vr.Warnings})
		itemIndex = append(itemIndex, i)
	}

	analyses := h.pipeline.AnalyzeBatch(ctx, items)
	analyzed := 0
	for j, a := range analyses {
		results[itemIndex[j]].Analysis = a
		if a != nil {
			analyzed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":  results,
		"total":    len(req.Transactions),
		"analyzed": analyzed,
	})
}

// ValidateBatch handles POST /api/transactions/validate requests: validation
// only, no scoring or persistence.
func (h *Handler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBatchRequest(w, r)
	if !ok {
		return
	}

	results := h.validator.ValidateBatch(req.Transactions)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"summary": validate.Summarize(results),
	})
}

// ListAnalyses handles GET /api/transactions requests with pagination and an
// optional risk_level filter.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := domain.AnalysisFilter{
		RiskLevel: domain.RiskLevel(r.URL.Query().Get("risk_level")),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", 20),
	}

	analyses, total, err := h.repo.ListAnalyses(ctx, filter)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": analyses,
		"total":        total,
		"page":         filter.Page,
		"perPage":      filter.PerPage,
	})
}

// GetAnalysis handles GET /api/transactions/{id}. The id may be either the
// analysis ID or the transaction ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	analysis, err := h.repo.GetAnalysisByTransaction(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		analysis, err = h.repo.GetAnalysis(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ListAlerts handles GET /api/alerts with an optional severity filter.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	severity := r.URL.Query().Get("severity")
	limit := queryInt(r, "limit", 100)

	alerts, err := h.repo.ListAlerts(ctx, severity, limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		slog.Error("failed to compute stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// RulesInfo handles GET /api/rules.
func (h *Handler) RulesInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"customRules": h.rules.RulesCount(),
	})
}

// CreateRule handles POST /api/rules: compiles and loads a custom CEL rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req rules.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}

	if err := h.rules.LoadRule(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	slog.Info("custom rule loaded", "id", req.ID, "name", req.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": req,
	})
}

// ModelInfo handles GET /api/model/info.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no model configured",
		})
		return
	}

	info, err := h.predictor.Info(r.Context())
	if err != nil {
		slog.Error("failed to get model info", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get model info",
		})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// TrainRequest is the request body for POST /api/model/train.
type TrainRequest struct {
	Samples int   `json:"samples"`
	Seed    int64 `json:"seed"`
}

// TrainModel handles POST /api/model/train: trains the embedded model on
// synthetic labeled data.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	if h.trainer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model is not trainable",
		})
		return
	}

	req := TrainRequest{Samples: 5000, Seed: 42}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}
	if req.Samples <= 0 {
		req.Samples = 5000
	}

	samples := model.GenerateSyntheticData(req.Samples, req.Seed)
	result, err := h.trainer.Train(r.Context(), samples)
	if err != nil {
		slog.Error("model training failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model training failed: " + err.Error(),
		})
		return
	}

	slog.Info("model trained",
		"samples", result.TrainingSamples,
		"fraud_samples", result.FraudSampleCount,
		"supervised", result.SupervisedTrained,
	)
	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeTransactionRequest decodes a single transaction payload. Amounts are
// decoded as json.Number so monetary values never pass through a float64.
func decodeTransactionRequest(w http.ResponseWriter, r *http.Request) (*domain.TransactionRequest, bool) {
	var req domain.TransactionRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}
	return &req, true
}

func decodeBatchRequest(w http.ResponseWriter, r *http.Request) (*BatchRequest, bool) {
	var req BatchRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions array is required",
		})
		return nil, false
	}
	return &req, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
