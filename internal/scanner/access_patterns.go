package scanner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

// accessPatternAnalyzer flags very stale objects for deletion, both
// individually and aggregated by top-level prefix.
type accessPatternAnalyzer struct {
	cfg     config.Scanner
	pricing config.Pricing
}

// AnalyzeObject emits a deletion finding for an object past the
// very-stale threshold.
func (a *accessPatternAnalyzer) AnalyzeObject(bucket string, obj cloud.ObjectInfo, now time.Time) []models.Recommendation {
	days := daysSince(obj.LastModified, now)
	if days < a.cfg.VeryStaleDays {
		return nil
	}

	class := obj.StorageClass
	if class == "" {
		class = config.ClassStandard
	}
	lastModified := obj.LastModified
	return []models.Recommendation{{
		Bucket:                  bucket,
		Key:                     obj.Key,
		Type:                    models.DeleteStaleObject,
		RiskLevel:               models.RiskHigh,
		Reason:                  fmt.Sprintf("Object is stale, not modified for %d days", days),
		RecommendedAction:       fmt.Sprintf("Review and delete %s/%s", bucket, obj.Key),
		EstimatedMonthlySavings: a.pricing.MonthlyCost(obj.SizeBytes, class),
		SizeBytes:               obj.SizeBytes,
		StorageClass:            class,
		LastModified:            &lastModified,
	}}
}

// AnalyzePrefixes groups objects by their first path segment and emits
// one deletion finding per prefix whose entire population has gone cold.
func (a *accessPatternAnalyzer) AnalyzePrefixes(bucket string, objects []cloud.ObjectInfo, now time.Time) []models.Recommendation {
	type prefixGroup struct {
		count     int
		sizeBytes int64
		newest    time.Time
	}
	groups := make(map[string]*prefixGroup)
	for _, obj := range objects {
		prefix, _, _ := strings.Cut(obj.Key, "/")
		g, ok := groups[prefix]
		if !ok {
			g = &prefixGroup{}
			groups[prefix] = g
		}
		g.count++
		g.sizeBytes += obj.SizeBytes
		if obj.LastModified.After(g.newest) {
			g.newest = obj.LastModified
		}
	}

	prefixes := make([]string, 0, len(groups))
	for prefix := range groups {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	var recs []models.Recommendation
	for _, prefix := range prefixes {
		g := groups[prefix]
		if g.count < a.cfg.PrefixMinCount {
			continue
		}
		days := daysSince(g.newest, now)
		if days < a.cfg.PrefixStaleDays {
			continue
		}
		newest := g.newest
		recs = append(recs, models.Recommendation{
			Bucket:    bucket,
			Key:       prefix + "/",
			Type:      models.DeleteStaleObject,
			RiskLevel: models.RiskHigh,
			Reason: fmt.Sprintf("All %d objects under prefix are stale, newest modified %d days ago",
				g.count, days),
			RecommendedAction:       fmt.Sprintf("Review and delete prefix %s/%s/", bucket, prefix),
			EstimatedMonthlySavings: a.pricing.MonthlyCost(g.sizeBytes, config.ClassStandard),
			SizeBytes:               g.sizeBytes,
			StorageClass:            config.ClassStandard,
			LastModified:            &newest,
		})
	}
	return recs
}
