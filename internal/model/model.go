// Package model provides the statistical fraud model collaborator.
// The scoring pipeline treats predictions as optional: any error or timeout
// from a Predictor means "no ML signal", never a failed analysis.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/fintechco/fraudguard/internal/domain"
)

// ErrUntrained is returned by Predict before the model has been trained.
var ErrUntrained = errors.New("model is not trained")

// Predictor scores batches of transactions.
type Predictor interface {
	// Predict returns one prediction per input transaction, in order.
	Predict(ctx context.Context, txs []*domain.Transaction) ([]*domain.Prediction, error)

	// Info describes the current model state.
	Info(ctx context.Context) (domain.ModelInfo, error)

	Close() error
}

// LabeledTransaction is one training sample.
type LabeledTransaction struct {
	Transaction *domain.Transaction
	IsFraud     bool
}

// TrainingResult summarizes a completed training run.
type TrainingResult struct {
	FeatureCount      int      `json:"featureCount"`
	TrainingSamples   int      `json:"trainingSamples"`
	Features          []string `json:"features"`
	SupervisedTrained bool     `json:"supervisedModelTrained"`
	FraudSampleCount  int      `json:"fraudSamples"`
}

// Trainer is implemented by predictors that can be (re)trained in process.
type Trainer interface {
	Train(ctx context.Context, samples []LabeledTransaction) (*TrainingResult, error)
}

// New creates a predictor based on configuration. Mode "off" returns a nil
// predictor; callers must treat nil as "no model wired".
func New(cfg domain.ModelConfig) (Predictor, error) {
	switch cfg.Mode {
	case "", "embedded":
		return NewEmbedded(), nil
	case "remote":
		return NewRemote(cfg.Endpoint, cfg.Timeout)
	case "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported model mode: %s", cfg.Mode)
	}
}
