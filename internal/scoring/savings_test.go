package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

func newTestCalculator() *SavingsCalculator {
	return NewSavingsCalculator(config.Default().Pricing)
}

func TestEstimateStorageClassTransition(t *testing.T) {
	est := newTestCalculator().Estimate(coldArchiveRec(1<<30, 220))

	assert.InDelta(t, 0.023, est.CurrentMonthlyCost, 1e-9)
	assert.InDelta(t, 0.004, est.ProjectedMonthlyCost, 1e-9)
	assert.InDelta(t, 0.019, est.MonthlySavings, 1e-9)
	assert.InDelta(t, 0.012, est.MinimumDurationRisk, 1e-9)
	assert.InDelta(t, 0.228, est.NetAnnualSavings, 1e-9)
	assert.Equal(t, models.ConfidenceHigh, est.EstimateConfidence)
	assert.NotEmpty(t, est.Assumptions)
}

func TestEstimateTransitionNeverNegative(t *testing.T) {
	rec := coldArchiveRec(1<<30, 220)
	rec.StorageClass = config.ClassGlacierIR
	rec.TargetStorageClass = config.ClassStandard

	est := newTestCalculator().Estimate(rec)
	assert.Zero(t, est.MonthlySavings)
}

func TestEstimateTransitionConfidenceDowngrades(t *testing.T) {
	rec := coldArchiveRec(1<<30, 220)
	rec.LastModified = nil
	assert.Equal(t, models.ConfidenceMedium, newTestCalculator().Estimate(rec).EstimateConfidence)

	rec.SizeBytes = 0
	assert.Equal(t, models.ConfidenceLow, newTestCalculator().Estimate(rec).EstimateConfidence)
}

func TestEstimateLifecyclePolicy(t *testing.T) {
	est := newTestCalculator().Estimate(models.Recommendation{
		ID:        "rec-lc",
		Bucket:    "b2",
		Type:      models.AddLifecyclePolicy,
		SizeBytes: 10 << 30,
	})

	// 30% of 10 GB moves from STANDARD (0.023) to GLACIER_IR (0.004).
	assert.InDelta(t, 0.23, est.CurrentMonthlyCost, 1e-9)
	assert.InDelta(t, 0.173, est.ProjectedMonthlyCost, 1e-9)
	assert.InDelta(t, 0.057, est.MonthlySavings, 1e-9)
	assert.Equal(t, models.ConfidenceLow, est.EstimateConfidence)
}

func TestEstimateLifecycleFallsBackToBaseline(t *testing.T) {
	est := newTestCalculator().Estimate(models.Recommendation{
		ID:                      "rec-lc",
		Bucket:                  "b2",
		Type:                    models.AddLifecyclePolicy,
		EstimatedMonthlySavings: 1.5,
	})
	assert.InDelta(t, 1.5, est.MonthlySavings, 1e-9)
	assert.Equal(t, models.ConfidenceLow, est.EstimateConfidence)
}

func TestEstimateIncompleteUploadFloor(t *testing.T) {
	est := newTestCalculator().Estimate(models.Recommendation{
		ID:     "rec-mp",
		Bucket: "b2",
		Key:    "tiny/upload.bin",
		Type:   models.DeleteIncompleteUpload,
	})
	assert.InDelta(t, 0.01, est.MonthlySavings, 1e-9)
	assert.Equal(t, models.ConfidenceLow, est.EstimateConfidence)
}

func TestEstimateStaleDeletion(t *testing.T) {
	est := newTestCalculator().Estimate(models.Recommendation{
		ID:           "rec-del",
		Bucket:       "b1",
		Key:          "x.bin",
		Type:         models.DeleteStaleObject,
		SizeBytes:    5 << 30,
		StorageClass: config.ClassStandard,
	})
	assert.InDelta(t, 0.115, est.CurrentMonthlyCost, 1e-9)
	assert.Zero(t, est.ProjectedMonthlyCost)
	assert.InDelta(t, 0.115, est.MonthlySavings, 1e-9)
	assert.Equal(t, models.ConfidenceHigh, est.EstimateConfidence)
}

func TestSummarizeCountsConfidenceBuckets(t *testing.T) {
	calc := newTestCalculator()
	details := []models.SavingsEstimate{
		calc.Estimate(coldArchiveRec(1<<30, 220)),
		calc.Estimate(models.Recommendation{ID: "lc", Type: models.AddLifecyclePolicy, SizeBytes: 10 << 30}),
		calc.Estimate(models.Recommendation{ID: "mp", Type: models.DeleteIncompleteUpload, SizeBytes: 64 << 20}),
	}

	summary := Summarize(details)
	require.Equal(t, 1, summary.HighConfidenceCount)
	require.Equal(t, 1, summary.MediumConfidenceCount)
	require.Equal(t, 1, summary.LowConfidenceCount)
	assert.InDelta(t,
		details[0].MonthlySavings+details[1].MonthlySavings+details[2].MonthlySavings,
		summary.TotalMonthlySavings, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, models.SavingsSummary{}, Summarize(nil))
}
