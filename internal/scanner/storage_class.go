package scanner

import (
	"fmt"
	"time"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

// storageClassAnalyzer suggests storage-class transitions for objects
// sitting in STANDARD past the staleness thresholds.
type storageClassAnalyzer struct {
	cfg     config.Scanner
	pricing config.Pricing
}

// Analyze inspects a single object. The stale-days rule fires first and
// suppresses the intelligent-tiering suggestion for the same object.
func (a *storageClassAnalyzer) Analyze(bucket string, obj cloud.ObjectInfo, now time.Time) []models.Recommendation {
	if obj.StorageClass != config.ClassStandard {
		return nil
	}

	days := daysSince(obj.LastModified, now)
	lastModified := obj.LastModified

	if obj.SizeBytes >= a.cfg.MinObjectBytes && days >= a.cfg.StaleDays {
		return []models.Recommendation{{
			Bucket:    bucket,
			Key:       obj.Key,
			Type:      models.ChangeStorageClass,
			RiskLevel: models.RiskMedium,
			Reason:    fmt.Sprintf("Object is cold, not modified for %d days", days),
			RecommendedAction: fmt.Sprintf("Transition %s/%s from %s to %s",
				bucket, obj.Key, obj.StorageClass, config.ClassGlacierIR),
			EstimatedMonthlySavings: a.pricing.MonthlySavings(obj.SizeBytes, obj.StorageClass, config.ClassGlacierIR),
			SizeBytes:               obj.SizeBytes,
			StorageClass:            obj.StorageClass,
			TargetStorageClass:      config.ClassGlacierIR,
			LastModified:            &lastModified,
		}}
	}

	if obj.SizeBytes >= a.cfg.LargeObjectBytes && days >= 30 && days < a.cfg.StaleDays {
		return []models.Recommendation{{
			Bucket:    bucket,
			Key:       obj.Key,
			Type:      models.ChangeStorageClass,
			RiskLevel: models.RiskLow,
			Reason:    fmt.Sprintf("Access pattern uncertain after %d days, tiering can adapt automatically", days),
			RecommendedAction: fmt.Sprintf("Transition %s/%s from %s to %s",
				bucket, obj.Key, obj.StorageClass, config.ClassIntelligentTiering),
			EstimatedMonthlySavings: 0,
			SizeBytes:               obj.SizeBytes,
			StorageClass:            obj.StorageClass,
			TargetStorageClass:      config.ClassIntelligentTiering,
			LastModified:            &lastModified,
		}}
	}

	return nil
}

func daysSince(t time.Time, now time.Time) int {
	if t.IsZero() {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}
