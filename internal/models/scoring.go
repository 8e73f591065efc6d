package models

// ConfidenceLevel buckets a score's confidence.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// RiskFactorScores holds the five factor scores, each in [0,100].
type RiskFactorScores struct {
	Reversibility    int `json:"reversibility"`
	DataLossRisk     int `json:"data_loss_risk"`
	AgeConfidence    int `json:"age_confidence"`
	SizeImpact       int `json:"size_impact"`
	AccessConfidence int `json:"access_confidence"`
}

// RiskScore is the weighted risk assessment for one recommendation.
// Scores are replaceable: re-scoring a run overwrites prior scores.
type RiskScore struct {
	RecommendationID string `json:"recommendation_id"`

	RiskScore       int `json:"risk_score"`
	ConfidenceScore int `json:"confidence_score"`
	ImpactScore     int `json:"impact_score"`

	RiskLevel       RiskLevel       `json:"risk_level"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`

	SafeToAutomate   bool `json:"safe_to_automate"`
	RequiresApproval bool `json:"requires_approval"`

	Factors                 []string         `json:"factors"`
	FactorScores            RiskFactorScores `json:"factor_scores"`
	ExecutionRecommendation string           `json:"execution_recommendation"`
}

// SavingsEstimate is the per-recommendation cost breakdown.
type SavingsEstimate struct {
	RecommendationID string `json:"recommendation_id"`

	CurrentMonthlyCost   float64 `json:"current_monthly_cost"`
	ProjectedMonthlyCost float64 `json:"projected_monthly_cost"`
	MonthlySavings       float64 `json:"monthly_savings"`

	TransitionCost      float64 `json:"transition_cost"`
	MinimumDurationRisk float64 `json:"minimum_duration_risk"`

	NetFirstMonth    float64 `json:"net_first_month"`
	NetAnnualSavings float64 `json:"net_annual_savings"`

	BreakEvenDays *int `json:"break_even_days,omitempty"`

	EstimateConfidence ConfidenceLevel `json:"estimate_confidence"`
	Assumptions        []string        `json:"assumptions"`
}

// SavingsSummary aggregates savings estimates across a run.
type SavingsSummary struct {
	TotalMonthlySavings  float64 `json:"total_monthly_savings"`
	TotalAnnualSavings   float64 `json:"total_annual_savings"`
	TotalTransitionCosts float64 `json:"total_transition_costs"`
	NetFirstMonth        float64 `json:"net_first_month"`

	HighConfidenceCount   int `json:"high_confidence_count"`
	MediumConfidenceCount int `json:"medium_confidence_count"`
	LowConfidenceCount    int `json:"low_confidence_count"`
}
