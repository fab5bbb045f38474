package domain

// Prediction is the statistical model's verdict for one transaction.
// The model is an external collaborator: the pipeline treats a missing or
// failed prediction as "no ML signal", never as an error.
type Prediction struct {
	TransactionID string `json:"transactionId"`

	// AnomalyScore is the raw detector output (unbounded, higher = more
	// normal for isolation-style detectors).
	AnomalyScore float64 `json:"anomalyScore"`

	// AnomalyProbability is the anomaly score mapped into [0,1].
	AnomalyProbability float64 `json:"anomalyProbability"`
	IsAnomaly          bool    `json:"isAnomaly"`

	// FraudProbability is set only when a supervised model is trained.
	FraudProbability *float64 `json:"fraudProbability,omitempty"`

	// CombinedFraudProbability is 0.6*supervised + 0.4*anomaly when a
	// supervised model is present, otherwise the anomaly probability alone.
	CombinedFraudProbability float64 `json:"combinedFraudProbability"`
}

// ModelInfo describes the state of the statistical model collaborator.
type ModelInfo struct {
	Status             string   `json:"status"` // "trained" or "not_trained"
	FeatureCount       int      `json:"featureCount,omitempty"`
	Features           []string `json:"features,omitempty"`
	HasSupervisedModel bool     `json:"hasSupervisedModel"`
	TrainingSamples    int      `json:"trainingSamples,omitempty"`
}
