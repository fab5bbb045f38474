package domain

// FactorKind identifies a risk factor analyzer. Kinds are a closed set so a
// typo in a factor name cannot silently zero out its weight.
type FactorKind string

const (
	FactorAmountAnomaly FactorKind = "amount_anomaly"
	FactorVelocity      FactorKind = "velocity_check"
	FactorLocation      FactorKind = "location_risk"
	FactorTime          FactorKind = "time_anomaly"
	FactorMerchant      FactorKind = "merchant_risk"
	FactorUsagePattern  FactorKind = "card_usage_pattern"
)

// factorWeights is the fixed per-kind weight table. The weights sum to 1.0 by
// construction; this is not enforced at runtime.
var factorWeights = map[FactorKind]float64{
	FactorAmountAnomaly: 0.25,
	FactorVelocity:      0.20,
	FactorLocation:      0.15,
	FactorTime:          0.10,
	FactorMerchant:      0.15,
	FactorUsagePattern:  0.15,
}

// Weight returns the configured weight for the factor kind, or 0 for an
// unknown kind.
func (k FactorKind) Weight() float64 {
	return factorWeights[k]
}

// RiskFactor is a named, weighted signal of suspicious activity. Value is the
// per-transaction severity in [0,1]; the factor's contribution to the
// composite score is Weight*Value.
type RiskFactor struct {
	Name        FactorKind `json:"name"`
	Weight      float64    `json:"weight"`
	Value       float64    `json:"value"`
	Description string     `json:"description"`
}

// RiskLevel is a discretized risk band derived from a continuous score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "MINIMAL"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// LevelForScore maps a composite risk score to its band.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// RiskAssessment is the output of the risk scoring engine.
type RiskAssessment struct {
	// RiskScore is the weighted sum of active factor contributions,
	// capped at 1.0 regardless of how many factors fire.
	RiskScore       float64      `json:"riskScore"`
	RiskLevel       RiskLevel    `json:"riskLevel"`
	Factors         []RiskFactor `json:"factors"`
	Recommendations []string     `json:"recommendations"`
	Confidence      float64      `json:"confidence"`
}
