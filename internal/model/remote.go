package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fintechco/fraudguard/internal/domain"
)

// Remote talks to an external model service over HTTP. Every call is bounded
// by the configured timeout so a slow model can never stall scoring; the
// caller treats any error as absence of an ML signal.
type Remote struct {
	endpoint string
	client   *http.Client
}

// NewRemote creates a client for a remote model service.
func NewRemote(endpoint string, timeout time.Duration) (*Remote, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote model endpoint is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type predictRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

type predictResponse struct {
	Predictions []*domain.Prediction `json:"predictions"`
}

// Predict implements Predictor.
func (r *Remote) Predict(ctx context.Context, txs []*domain.Transaction) ([]*domain.Prediction, error) {
	body, err := json.Marshal(predictRequest{Transactions: txs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model service returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode predict response: %w", err)
	}
	if len(out.Predictions) != len(txs) {
		return nil, fmt.Errorf("model service returned %d predictions for %d transactions",
			len(out.Predictions), len(txs))
	}
	return out.Predictions, nil
}

// Info implements Predictor.
func (r *Remote) Info(ctx context.Context) (domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/info", nil)
	if err != nil {
		return domain.ModelInfo{}, fmt.Errorf("failed to build info request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.ModelInfo{}, fmt.Errorf("model service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ModelInfo{}, fmt.Errorf("model service returned status %d", resp.StatusCode)
	}

	var info domain.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.ModelInfo{}, fmt.Errorf("failed to decode info response: %w", err)
	}
	return info, nil
}

// Close implements Predictor.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
