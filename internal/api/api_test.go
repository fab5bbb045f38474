package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fintechco/fraudguard/internal/bus"
	"github.com/fintechco/fraudguard/internal/domain"
	"github.com/fintechco/fraudguard/internal/model"
	"github.com/fintechco/fraudguard/internal/repository"
	"github.com/fintechco/fraudguard/internal/risk"
	"github.com/fintechco/fraudguard/internal/rules"
	"github.com/fintechco/fraudguard/internal/velocity"
	"github.com/fintechco/fraudguard/internal/worker"
)

// createTestServer wires a full server against temp-file SQLite, the channel
// bus and an untrained embedded model.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	ruleEngine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	t.Cleanup(func() { ruleEngine.Close() })

	tracker := velocity.NewMemoryTracker(5*time.Minute, 24*time.Hour)
	riskEngine := risk.NewEngine(tracker)

	embedded := model.NewEmbedded()
	pipeline := worker.NewPipeline(ruleEngine, riskEngine, embedded, repo, nil, eventBus, time.Second)

	return NewServer(cfg, pipeline, repo, nil, eventBus, ruleEngine, embedded, embedded, "test-v1")
}

func transactionBody(id, amount string) map[string]any {
	return map[string]any{
		"id":          id,
		"amount":      amount,
		"merchant":    "Grocery Store",
		"location":    "New York, US",
		"timestamp":   time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"card_number": "****1234",
		"currency":    "USD",
	}
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulAnalysis", func(t *testing.T) {
		rr := postJSON(t, server, "/api/transactions", transactionBody("tx-api-001", "25.99"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AnalyzeResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Analysis == nil || resp.Analysis.ID == "" {
			t.Fatal("expected analysis with ID in response")
		}
		if resp.Analysis.Transaction.ID != "tx-api-001" {
			t.Errorf("expected transaction ID tx-api-001, got %s", resp.Analysis.Transaction.ID)
		}
		if resp.Analysis.Decision.Action != domain.ActionApprove {
			t.Errorf("expected APPROVE for a small grocery purchase, got %s", resp.Analysis.Decision.Action)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("StringAmountAccepted", func(t *testing.T) {
		body := transactionBody("tx-api-002", "")
		body["amount"] = "199.99"
		rr := postJSON(t, server, "/api/transactions", body)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("NumericAmountAccepted", func(t *testing.T) {
		body := transactionBody("tx-api-003", "")
		body["amount"] = 42.50
		rr := postJSON(t, server, "/api/transactions", body)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		body := transactionBody("tx-api-004", "25.99")
		body["card_number"] = "4111111111111111"
		rr := postJSON(t, server, "/api/transactions", body)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["errors"] == nil {
			t.Error("expected validation errors in response")
		}
	})

	t.Run("MissingAmount", func(t *testing.T) {
		body := transactionBody("tx-api-005", "")
		delete(body, "amount")
		rr := postJSON(t, server, "/api/transactions", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := postJSON(t, server, "/api/transactions", transactionBody("tx-api-006", "10.00"))

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("MixedBatch", func(t *testing.T) {
		invalid := transactionBody("tx-batch-bad", "25.99")
		invalid["card_number"] = "not-a-card"

		body := map[string]any{
			"transactions": []map[string]any{
				transactionBody("tx-batch-001", "25.99"),
				invalid,
				transactionBody("tx-batch-002", "40.00"),
			},
		}
		rr := postJSON(t, server, "/api/transactions/batch", body)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Results  []BatchResult `json:"results"`
			Total    int           `json:"total"`
			Analyzed int           `json:"analyzed"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Total != 3 {
			t.Errorf("total = %d, want 3", resp.Total)
		}
		if resp.Analyzed != 2 {
			t.Errorf("analyzed = %d, want 2", resp.Analyzed)
		}
		if resp.Results[1].Valid {
			t.Error("expected second entry to be invalid")
		}
		if resp.Results[0].Analysis == nil || resp.Results[2].Analysis == nil {
			t.Error("expected analyses for valid entries")
		}
		if resp.Results[0].Analysis.Transaction.ID != "tx-batch-001" {
			t.Errorf("result order not preserved: got %s", resp.Results[0].Analysis.Transaction.ID)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		rr := postJSON(t, server, "/api/transactions/batch", map[string]any{"transactions": []any{}})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	server := createTestServer(t)

	invalid := transactionBody("tx-val-bad", "25.99")
	invalid["location"] = ""

	body := map[string]any{
		"transactions": []map[string]any{
			transactionBody("tx-val-001", "25.99"),
			invalid,
		},
	}
	rr := postJSON(t, server, "/api/transactions/validate", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Summary struct {
			Total   int `json:"totalTransactions"`
			Valid   int `json:"validTransactions"`
			Invalid int `json:"invalidTransactions"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Summary.Total != 2 || resp.Summary.Valid != 1 || resp.Summary.Invalid != 1 {
		t.Errorf("summary = %+v, want total 2, valid 1, invalid 1", resp.Summary)
	}
}

func TestRetrievalEndpoints(t *testing.T) {
	server := createTestServer(t)

	for i := 0; i < 3; i++ {
		rr := postJSON(t, server, "/api/transactions", transactionBody(fmt.Sprintf("tx-list-%03d", i), "25.99"))
		if rr.Code != http.StatusOK {
			t.Fatalf("setup analysis failed: %d %s", rr.Code, rr.Body.String())
		}
	}

	t.Run("GetByTransactionID", func(t *testing.T) {
		rr := getJSON(t, server, "/api/transactions/tx-list-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var analysis domain.Analysis
		if err := json.Unmarshal(rr.Body.Bytes(), &analysis); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if analysis.Transaction.ID != "tx-list-001" {
			t.Errorf("transaction ID = %s, want tx-list-001", analysis.Transaction.ID)
		}
	})

	t.Run("GetUnknownID", func(t *testing.T) {
		rr := getJSON(t, server, "/api/transactions/no-such-tx")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListAll", func(t *testing.T) {
		rr := getJSON(t, server, "/api/transactions")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Total   int `json:"total"`
			Page    int `json:"page"`
			PerPage int `json:"perPage"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Total != 3 {
			t.Errorf("total = %d, want 3", resp.Total)
		}
		if resp.Page != 1 || resp.PerPage != 20 {
			t.Errorf("pagination defaults = page %d per_page %d, want 1/20", resp.Page, resp.PerPage)
		}
	})

	t.Run("ListFiltered", func(t *testing.T) {
		rr := getJSON(t, server, "/api/transactions?risk_level=CRITICAL")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Total != 0 {
			t.Errorf("total = %d, want 0 CRITICAL analyses", resp.Total)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rr := getJSON(t, server, "/api/stats")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var stats domain.RiskStats
		if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if stats.TotalTransactions != 3 {
			t.Errorf("totalTransactions = %d, want 3", stats.TotalTransactions)
		}
	})
}

func TestAlertEndpoint(t *testing.T) {
	server := createTestServer(t)

	risky := transactionBody("tx-alert-001", "9500.00")
	risky["merchant"] = "Crypto Casino"
	risky["location"] = "Unknown, Moscow"
	rr := postJSON(t, server, "/api/transactions", risky)
	if rr.Code != http.StatusOK {
		t.Fatalf("setup analysis failed: %d %s", rr.Code, rr.Body.String())
	}

	rr = getJSON(t, server, "/api/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Alerts []*domain.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Alerts[0].TransactionID != "tx-alert-001" {
		t.Errorf("alert transaction = %s, want tx-alert-001", resp.Alerts[0].TransactionID)
	}
	if resp.Alerts[0].Status != domain.AlertStatusOpen {
		t.Errorf("alert status = %s, want OPEN", resp.Alerts[0].Status)
	}
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		body := map[string]any{
			"id":         "late-night-wire",
			"name":       "Late Night Wire",
			"expression": "hour >= 0 && hour <= 4 && amount > 1000.0",
			"weight":     0.5,
			"enabled":    true,
		}
		rr := postJSON(t, server, "/api/rules", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = getJSON(t, server, "/api/rules")
		var resp struct {
			CustomRules int `json:"customRules"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.CustomRules != 1 {
			t.Errorf("customRules = %d, want 1", resp.CustomRules)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		body := map[string]any{
			"id":         "broken",
			"expression": "amount >>> 1",
			"weight":     0.5,
			"enabled":    true,
		}
		rr := postJSON(t, server, "/api/rules", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		body := map[string]any{"expression": "amount > 10.0"}
		rr := postJSON(t, server, "/api/rules", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("InfoBeforeTraining", func(t *testing.T) {
		rr := getJSON(t, server, "/api/model/info")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var info domain.ModelInfo
		if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if info.Status != "not_trained" {
			t.Errorf("status = %s, want not_trained", info.Status)
		}
	})

	t.Run("TrainAndInfo", func(t *testing.T) {
		rr := postJSON(t, server, "/api/model/train", map[string]any{"samples": 500, "seed": 7})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result model.TrainingResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.TrainingSamples != 500 {
			t.Errorf("trainingSamples = %d, want 500", result.TrainingSamples)
		}
		if result.FeatureCount == 0 {
			t.Error("expected a nonzero feature count")
		}

		rr = getJSON(t, server, "/api/model/info")
		var info domain.ModelInfo
		if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if info.Status != "trained" {
			t.Errorf("status = %s, want trained", info.Status)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		rr := getJSON(t, server, "/health")
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		rr := getJSON(t, server, "/ready")
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("TracingMiddlewareKeepsClientRequestID", func(t *testing.T) {
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-supplied-id")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got != "client-supplied-id" {
			t.Errorf("X-Request-ID = %s, want client-supplied-id", got)
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight should not reach the handler")
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://example.com")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
			t.Errorf("unexpected allow-origin: %s", rr.Header().Get("Access-Control-Allow-Origin"))
		}
	})
}
