// Package scoring turns scanner findings into weighted risk assessments
// and dollar savings estimates. Everything in this package is pure: no
// I/O, no clock reads beyond the injected one, identical inputs produce
// identical outputs.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

// Factor weights. They sum to 1.0.
const (
	weightReversibility = 0.30
	weightDataLoss      = 0.25
	weightAge           = 0.20
	weightSize          = 0.15
	weightAccess        = 0.10
)

// Execution recommendation labels, keyed by the decision ladder in
// executionRecommendation.
const (
	RecSafeToAutomate   = "Safe to automate."
	RecManualReview     = "Manual review required."
	RecExplicitApproval = "Explicit approval required."
	RecMoreEvidence     = "Collect more usage evidence."
	RecValidatedBatch   = "Include in validated execution batch."
)

// Scorer assigns risk, confidence and impact scores to recommendations.
// The zero value is not usable; construct with NewScorer.
type Scorer struct {
	pricing      config.Pricing
	approvalSize int64
	now          func() time.Time
}

// NewScorer builds a scorer over the given pricing table and approval
// size threshold.
func NewScorer(pricing config.Pricing, approvalSizeBytes int64) *Scorer {
	return &Scorer{
		pricing:      pricing,
		approvalSize: approvalSizeBytes,
		now:          time.Now,
	}
}

// WithClock overrides the clock used for age computation. Intended for
// tests.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score assesses every recommendation and aggregates the savings summary.
// The returned slices are index-aligned with the input.
func (s *Scorer) Score(recs []models.Recommendation) ([]models.RiskScore, []models.SavingsEstimate, models.SavingsSummary) {
	scores := make([]models.RiskScore, 0, len(recs))
	details := make([]models.SavingsEstimate, 0, len(recs))
	calc := NewSavingsCalculator(s.pricing)

	for _, rec := range recs {
		estimate := calc.Estimate(rec)
		scores = append(scores, s.scoreOne(rec, estimate))
		details = append(details, estimate)
	}

	return scores, details, Summarize(details)
}

func (s *Scorer) scoreOne(rec models.Recommendation, estimate models.SavingsEstimate) models.RiskScore {
	factors := s.factorScores(rec)

	risk := clamp100(int(math.Round(
		float64(100-factors.Reversibility)*weightReversibility +
			float64(factors.DataLossRisk)*weightDataLoss +
			float64(100-factors.AgeConfidence)*weightAge +
			float64(factors.SizeImpact)*weightSize +
			float64(100-factors.AccessConfidence)*weightAccess)))

	confidence := clamp100(int(math.Round(
		float64(factors.Reversibility+factors.AgeConfidence+factors.AccessConfidence) / 3)))

	impact := impactScore(estimate.MonthlySavings)

	requiresApproval := risk >= 55 ||
		rec.Type == models.DeleteStaleObject ||
		rec.SizeBytes >= s.approvalSize

	safeToAutomate := risk < 30 && confidence >= 70 && rec.Type != models.DeleteStaleObject

	return models.RiskScore{
		RecommendationID:        rec.ID,
		RiskScore:               risk,
		ConfidenceScore:         confidence,
		ImpactScore:             impact,
		RiskLevel:               riskLevel(risk),
		ConfidenceLevel:         confidenceLevel(confidence),
		SafeToAutomate:          safeToAutomate,
		RequiresApproval:        requiresApproval,
		Factors:                 s.explainFactors(rec, factors),
		FactorScores:            factors,
		ExecutionRecommendation: executionRecommendation(safeToAutomate, requiresApproval, risk, confidence),
	}
}

func (s *Scorer) factorScores(rec models.Recommendation) models.RiskFactorScores {
	return models.RiskFactorScores{
		Reversibility:    reversibilityScore(rec.Type),
		DataLossRisk:     dataLossScore(rec.Type),
		AgeConfidence:    s.ageConfidence(rec.LastModified),
		SizeImpact:       sizeImpact(rec.SizeBytes),
		AccessConfidence: accessConfidence(rec),
	}
}

func reversibilityScore(t models.RecommendationType) int {
	switch t {
	case models.ChangeStorageClass:
		return 90
	case models.AddLifecyclePolicy, models.DeleteIncompleteUpload:
		return 100
	case models.DeleteOldVersion:
		return 70
	case models.DeleteStaleObject:
		return 0
	default:
		return 0
	}
}

func dataLossScore(t models.RecommendationType) int {
	switch t {
	case models.DeleteStaleObject:
		return 100
	case models.DeleteOldVersion:
		return 60
	case models.DeleteIncompleteUpload:
		return 10
	case models.ChangeStorageClass:
		return 5
	default:
		return 0
	}
}

func (s *Scorer) ageConfidence(lastModified *time.Time) int {
	if lastModified == nil {
		return 35
	}
	days := int(s.now().Sub(*lastModified).Hours() / 24)
	switch {
	case days >= 365:
		return 95
	case days >= 180:
		return 80
	case days >= 90:
		return 65
	case days >= 30:
		return 45
	default:
		return 25
	}
}

func sizeImpact(sizeBytes int64) int {
	gb := float64(sizeBytes) / (1024 * 1024 * 1024)
	switch {
	case gb >= 100:
		return 100
	case gb >= 10:
		return 80
	case gb >= 1:
		return 60
	case gb >= 0.1:
		return 35
	default:
		return 15
	}
}

// accessConfidence scores how much evidence the finding carries about the
// object actually being cold. A keyword in the analyzer's reason adds a
// bonus.
func accessConfidence(rec models.Recommendation) int {
	score := 35
	if rec.LastModified != nil {
		score = 50
	}
	reason := strings.ToLower(rec.Reason)
	for _, kw := range []string{"cold", "stale", "infrequent"} {
		if strings.Contains(reason, kw) {
			score += 10
			break
		}
	}
	return clamp100(score)
}

func impactScore(monthlySavings float64) int {
	switch {
	case monthlySavings >= 100:
		return 100
	case monthlySavings >= 50:
		return 80
	case monthlySavings >= 10:
		return 60
	case monthlySavings >= 1:
		return 40
	default:
		return 20
	}
}

func riskLevel(risk int) models.RiskLevel {
	switch {
	case risk < 30:
		return models.RiskLow
	case risk < 60:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func confidenceLevel(conf int) models.ConfidenceLevel {
	switch {
	case conf >= 70:
		return models.ConfidenceHigh
	case conf >= 50:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// executionRecommendation picks the prose label, first match wins.
func executionRecommendation(safe, requiresApproval bool, risk, confidence int) string {
	switch {
	case safe:
		return RecSafeToAutomate
	case requiresApproval && risk >= 70:
		return RecManualReview
	case requiresApproval:
		return RecExplicitApproval
	case confidence < 50:
		return RecMoreEvidence
	default:
		return RecValidatedBatch
	}
}

func (s *Scorer) explainFactors(rec models.Recommendation, f models.RiskFactorScores) []string {
	factors := []string{
		fmt.Sprintf("reversibility %d/100 for %s", f.Reversibility, rec.Type),
		fmt.Sprintf("data loss risk %d/100", f.DataLossRisk),
	}
	if rec.LastModified == nil {
		factors = append(factors, "last modified unknown")
	} else {
		days := int(s.now().Sub(*rec.LastModified).Hours() / 24)
		factors = append(factors, fmt.Sprintf("last modified %d days ago", days))
	}
	factors = append(factors,
		fmt.Sprintf("size %.2f GB scores %d/100 impact", float64(rec.SizeBytes)/(1024*1024*1024), f.SizeImpact),
		fmt.Sprintf("access evidence %d/100", f.AccessConfidence),
	)
	return factors
}

func clamp100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
