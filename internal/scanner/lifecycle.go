package scanner

import (
	"fmt"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

const (
	lifecycleMinBucketBytes     = 100 * 1024 * 1024
	lifecycleTransitionMinBytes = 1024 * 1024 * 1024

	// Fractions of the bucket's STANDARD cost assumed recoverable.
	noPolicySavingsFraction     = 0.10
	noTransitionSavingsFraction = 0.30
)

// lifecycleAnalyzer inspects a bucket's lifecycle configuration for
// missing archival and cleanup rules.
type lifecycleAnalyzer struct {
	cfg     config.Scanner
	pricing config.Pricing
}

// Analyze runs against the bucket as a whole. rules carries the enabled
// and disabled lifecycle rules, or nil when the bucket has none.
func (a *lifecycleAnalyzer) Analyze(bucket string, rules []cloud.LifecycleRule, totalSizeBytes int64) []models.Recommendation {
	if totalSizeBytes < lifecycleMinBucketBytes {
		return nil
	}

	standardCost := a.pricing.MonthlyCost(totalSizeBytes, config.ClassStandard)

	if len(rules) == 0 {
		return []models.Recommendation{{
			Bucket:                  bucket,
			Type:                    models.AddLifecyclePolicy,
			RiskLevel:               models.RiskLow,
			Reason:                  "Bucket has no lifecycle policy",
			RecommendedAction:       fmt.Sprintf("Add a lifecycle policy to %s with archival and multipart cleanup rules", bucket),
			EstimatedMonthlySavings: config.Round4(standardCost * noPolicySavingsFraction),
			SizeBytes:               totalSizeBytes,
		}}
	}

	var hasAbort, hasTransition bool
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.AbortIncompleteMultipartDays > 0 {
			hasAbort = true
		}
		if rule.TransitionStorageClass != "" {
			hasTransition = true
		}
	}

	// Bucket-level findings share a dedup key, so the higher-value
	// transition finding goes first.
	var recs []models.Recommendation
	if !hasTransition && totalSizeBytes > lifecycleTransitionMinBytes {
		recs = append(recs, models.Recommendation{
			Bucket:                  bucket,
			Type:                    models.AddLifecyclePolicy,
			RiskLevel:               models.RiskLow,
			Reason:                  "Lifecycle policy has no storage class transition rules",
			RecommendedAction:       fmt.Sprintf("Add an archival transition rule to %s", bucket),
			EstimatedMonthlySavings: config.Round4(standardCost * noTransitionSavingsFraction),
			SizeBytes:               totalSizeBytes,
		})
	}
	if !hasAbort {
		recs = append(recs, models.Recommendation{
			Bucket:                  bucket,
			Type:                    models.AddLifecyclePolicy,
			RiskLevel:               models.RiskLow,
			Reason:                  "Lifecycle policy lacks an incomplete multipart upload cleanup rule",
			RecommendedAction:       fmt.Sprintf("Add an abort-incomplete-multipart rule to %s", bucket),
			EstimatedMonthlySavings: 0,
			SizeBytes:               totalSizeBytes,
		})
	}
	return recs
}
