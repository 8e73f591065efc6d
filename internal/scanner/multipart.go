package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

// multipartAnalyzer flags incomplete multipart uploads older than the
// configured age. Part listing is best-effort and only refines the size
// and savings figures.
type multipartAnalyzer struct {
	cfg     config.Scanner
	pricing config.Pricing
	store   cloud.ObjectStore
}

func (a *multipartAnalyzer) Analyze(ctx context.Context, bucket string, uploads []cloud.MultipartUpload, now time.Time) []models.Recommendation {
	var recs []models.Recommendation
	for _, upload := range uploads {
		ageDays := daysSince(upload.Initiated, now)
		if ageDays < a.cfg.MultipartAgeDays {
			continue
		}

		var sizeBytes int64
		if parts, err := a.store.ListParts(ctx, bucket, upload.Key, upload.UploadID); err == nil {
			for _, p := range parts {
				sizeBytes += p.SizeBytes
			}
		}

		initiated := upload.Initiated
		recs = append(recs, models.Recommendation{
			Bucket:                  bucket,
			Key:                     upload.Key,
			Type:                    models.DeleteIncompleteUpload,
			RiskLevel:               models.RiskLow,
			Reason:                  fmt.Sprintf("Incomplete multipart upload initiated %d days ago", ageDays),
			RecommendedAction:       fmt.Sprintf("Abort incomplete upload %s for %s/%s", upload.UploadID, bucket, upload.Key),
			EstimatedMonthlySavings: a.pricing.MonthlyCost(sizeBytes, config.ClassStandard),
			SizeBytes:               sizeBytes,
			UploadID:                upload.UploadID,
			LastModified:            &initiated,
		})
	}
	return recs
}
