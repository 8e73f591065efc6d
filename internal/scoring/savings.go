package scoring

import (
	"fmt"
	"math"

	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

const gib = 1024 * 1024 * 1024

// Fraction of a bucket assumed to migrate to archival storage once a
// lifecycle policy is in place.
const lifecycleArchiveFraction = 0.3

// SavingsCalculator produces per-recommendation cost breakdowns from the
// injected pricing table.
type SavingsCalculator struct {
	pricing config.Pricing
}

// NewSavingsCalculator builds a calculator over the given pricing table.
func NewSavingsCalculator(pricing config.Pricing) *SavingsCalculator {
	return &SavingsCalculator{pricing: pricing}
}

// Estimate computes the savings breakdown for one recommendation.
func (c *SavingsCalculator) Estimate(rec models.Recommendation) models.SavingsEstimate {
	switch rec.Type {
	case models.ChangeStorageClass:
		return c.estimateTransition(rec)
	case models.AddLifecyclePolicy:
		return c.estimateLifecycle(rec)
	case models.DeleteIncompleteUpload:
		return c.estimateAbort(rec)
	case models.DeleteStaleObject, models.DeleteOldVersion:
		return c.estimateDeletion(rec)
	default:
		return models.SavingsEstimate{
			RecommendationID:   rec.ID,
			EstimateConfidence: models.ConfidenceLow,
			Assumptions:        []string{"unknown recommendation type"},
		}
	}
}

func (c *SavingsCalculator) estimateTransition(rec models.Recommendation) models.SavingsEstimate {
	from := rec.StorageClass
	if from == "" {
		from = config.ClassStandard
	}
	to := rec.TargetStorageClass
	gb := float64(rec.SizeBytes) / gib

	current := config.Round4(gb * c.pricing.Rate(from))
	projected := config.Round4(gb * c.pricing.Rate(to))
	savings := config.Round4(math.Max(0, current-projected))
	transition := config.Round4(c.pricing.TransitionCost(to) / 1000)

	est := models.SavingsEstimate{
		RecommendationID:     rec.ID,
		CurrentMonthlyCost:   current,
		ProjectedMonthlyCost: projected,
		MonthlySavings:       savings,
		TransitionCost:       transition,
		NetFirstMonth:        config.Round4(savings - transition),
		NetAnnualSavings:     config.Round4(savings*12 - transition),
		Assumptions: []string{
			fmt.Sprintf("transition %s to %s at current size", from, to),
		},
	}

	if minDays, ok := c.pricing.MinDuration(to); ok {
		est.MinimumDurationRisk = config.Round4(projected * float64(minDays) / 30)
		est.Assumptions = append(est.Assumptions,
			fmt.Sprintf("%s charges a %d-day minimum storage duration", to, minDays))
	}
	if savings > 0 && transition > 0 {
		days := int(math.Floor(transition / savings * 30))
		est.BreakEvenDays = &days
	}

	switch {
	case rec.LastModified != nil && rec.SizeBytes > 0:
		est.EstimateConfidence = models.ConfidenceHigh
	case rec.SizeBytes > 0:
		est.EstimateConfidence = models.ConfidenceMedium
	default:
		est.EstimateConfidence = models.ConfidenceLow
	}
	return est
}

func (c *SavingsCalculator) estimateLifecycle(rec models.Recommendation) models.SavingsEstimate {
	est := models.SavingsEstimate{
		RecommendationID:   rec.ID,
		EstimateConfidence: models.ConfidenceLow,
	}

	if rec.SizeBytes > 0 {
		gb := float64(rec.SizeBytes) / gib
		standard := c.pricing.Rate(config.ClassStandard)
		archived := c.pricing.Rate(config.ClassGlacierIR)
		blended := (1-lifecycleArchiveFraction)*standard + lifecycleArchiveFraction*archived

		est.CurrentMonthlyCost = config.Round4(gb * standard)
		est.ProjectedMonthlyCost = config.Round4(gb * blended)
		est.MonthlySavings = config.Round4(est.CurrentMonthlyCost - est.ProjectedMonthlyCost)
		est.Assumptions = []string{
			fmt.Sprintf("assumes %.0f%% of bucket data migrates to %s",
				lifecycleArchiveFraction*100, config.ClassGlacierIR),
		}
	} else {
		est.CurrentMonthlyCost = config.Round4(rec.EstimatedMonthlySavings)
		est.MonthlySavings = config.Round4(rec.EstimatedMonthlySavings)
		est.Assumptions = []string{"bucket size unknown, using scan-time baseline estimate"}
	}

	est.NetFirstMonth = est.MonthlySavings
	est.NetAnnualSavings = config.Round4(est.MonthlySavings * 12)
	return est
}

func (c *SavingsCalculator) estimateAbort(rec models.Recommendation) models.SavingsEstimate {
	gb := float64(rec.SizeBytes) / gib
	current := config.Round4(gb * c.pricing.Rate(config.ClassStandard))
	if current < 0.01 {
		current = 0.01
	}

	confidence := models.ConfidenceLow
	assumptions := []string{"part sizes unknown, using minimum charge floor"}
	if rec.SizeBytes > 0 {
		confidence = models.ConfidenceMedium
		assumptions = []string{"summed uploaded parts billed at STANDARD rate"}
	}

	return models.SavingsEstimate{
		RecommendationID:     rec.ID,
		CurrentMonthlyCost:   current,
		ProjectedMonthlyCost: 0,
		MonthlySavings:       current,
		NetFirstMonth:        current,
		NetAnnualSavings:     config.Round4(current * 12),
		EstimateConfidence:   confidence,
		Assumptions:          assumptions,
	}
}

func (c *SavingsCalculator) estimateDeletion(rec models.Recommendation) models.SavingsEstimate {
	class := rec.StorageClass
	if class == "" {
		class = config.ClassStandard
	}
	gb := float64(rec.SizeBytes) / gib
	current := config.Round4(gb * c.pricing.Rate(class))

	confidence := models.ConfidenceMedium
	if rec.SizeBytes > 0 {
		confidence = models.ConfidenceHigh
	}

	return models.SavingsEstimate{
		RecommendationID:     rec.ID,
		CurrentMonthlyCost:   current,
		ProjectedMonthlyCost: 0,
		MonthlySavings:       current,
		NetFirstMonth:        current,
		NetAnnualSavings:     config.Round4(current * 12),
		EstimateConfidence:   confidence,
		Assumptions:          []string{fmt.Sprintf("object billed at %s rate until deleted", class)},
	}
}

// Summarize aggregates per-recommendation estimates into the run-level
// totals.
func Summarize(details []models.SavingsEstimate) models.SavingsSummary {
	var summary models.SavingsSummary
	for _, d := range details {
		summary.TotalMonthlySavings += d.MonthlySavings
		summary.TotalAnnualSavings += d.NetAnnualSavings
		summary.TotalTransitionCosts += d.TransitionCost
		summary.NetFirstMonth += d.NetFirstMonth

		switch d.EstimateConfidence {
		case models.ConfidenceHigh:
			summary.HighConfidenceCount++
		case models.ConfidenceMedium:
			summary.MediumConfidenceCount++
		default:
			summary.LowConfidenceCount++
		}
	}
	summary.TotalMonthlySavings = config.Round4(summary.TotalMonthlySavings)
	summary.TotalAnnualSavings = config.Round4(summary.TotalAnnualSavings)
	summary.TotalTransitionCosts = config.Round4(summary.TotalTransitionCosts)
	summary.NetFirstMonth = config.Round4(summary.NetFirstMonth)
	return summary
}
