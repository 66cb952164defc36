package payment

import "time"

// RiskLevel buckets a risk score.
type RiskLevel string

// Risk levels derived from the aggregate score.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk level thresholds on the 0-100 score scale.
const (
	RiskThresholdMedium   = 40.0
	RiskThresholdHigh     = 60.0
	RiskThresholdCritical = 80.0
)

// LevelForScore maps an aggregate risk score to its level. The mapping is a
// deterministic step function: >=80 critical, >=60 high, >=40 medium.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= RiskThresholdCritical:
		return RiskCritical
	case score >= RiskThresholdHigh:
		return RiskHigh
	case score >= RiskThresholdMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskFactor is one weighted contribution to an assessment.
type RiskFactor struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// RiskAssessment is the outcome of scoring one transaction. It is created
// once and immutable afterwards except for reviewer sign-off.
type RiskAssessment struct {
	ID              string       `json:"id"`
	TransactionID   string       `json:"transaction_id"`
	TenantID        string       `json:"tenant_id"`
	CustomerID      string       `json:"customer_id"`
	Score           float64      `json:"score"`
	Level           RiskLevel    `json:"level"`
	Factors         []RiskFactor `json:"factors"`
	FraudIndicators []string     `json:"fraud_indicators,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Blocked         bool         `json:"blocked"`
	ManualReview    bool         `json:"manual_review"`
	ReviewedBy      string       `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// AggregateScore recomputes the weight-normalized mean of the factor scores.
func AggregateScore(factors []RiskFactor) float64 {
	var weighted, total float64
	for _, f := range factors {
		weighted += f.Score * f.Weight
		total += f.Weight
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// MarkReviewed returns a copy with reviewer sign-off recorded.
func (a RiskAssessment) MarkReviewed(reviewer string, now time.Time) RiskAssessment {
	a.ReviewedBy = reviewer
	a.ReviewedAt = &now
	return a
}
