// Package scanner walks the account's buckets and produces cost
// optimization findings. Buckets are scanned by a bounded worker pool;
// everything downstream of the adapter verbs is pure.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/models"
)

// Result is the outcome of one scan pass.
type Result struct {
	Recommendations []models.Recommendation
	Stats           models.ScanStats
}

// Scanner produces a fresh Result per Scan call and keeps no state
// between calls.
type Scanner struct {
	store   cloud.ObjectStore
	cfg     config.Scanner
	pricing config.Pricing
	log     logger.Logger
	now     func() time.Time

	storageClass  *storageClassAnalyzer
	accessPattern *accessPatternAnalyzer
	lifecycle     *lifecycleAnalyzer
	multipart     *multipartAnalyzer
}

// New builds a scanner over the given object store.
func New(store cloud.ObjectStore, cfg config.Scanner, pricing config.Pricing) *Scanner {
	return &Scanner{
		store:         store,
		cfg:           cfg,
		pricing:       pricing,
		log:           logger.New("scanner"),
		now:           time.Now,
		storageClass:  &storageClassAnalyzer{cfg: cfg, pricing: pricing},
		accessPattern: &accessPatternAnalyzer{cfg: cfg, pricing: pricing},
		lifecycle:     &lifecycleAnalyzer{cfg: cfg, pricing: pricing},
		multipart:     &multipartAnalyzer{cfg: cfg, pricing: pricing, store: store},
	}
}

// WithClock overrides the clock used for age computation. Intended for
// tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

type bucketResult struct {
	bucket          string
	recommendations []models.Recommendation
	objectCount     int
	sizeBytes       int64
	err             error
}

// Scan enumerates buckets, fans the per-bucket work out across the
// worker pool and returns deduplicated findings. Per-bucket failures are
// recorded in the stats and do not halt the scan.
func (s *Scanner) Scan(ctx context.Context, req models.ScanRequest) (*Result, error) {
	buckets, err := retryTransient(func() ([]cloud.BucketInfo, error) {
		return s.store.ListBuckets(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	targets := s.filterBuckets(buckets, req)
	maxObjects := s.cfg.MaxObjectsPerBucket
	if req.MaxObjectsPerBucket > 0 {
		maxObjects = req.MaxObjectsPerBucket
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan string)
	results := make(chan bucketResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bucket := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- s.scanBucket(ctx, bucket, maxObjects)
			}
		}()
	}

	for _, bucket := range targets {
		select {
		case jobs <- bucket:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	byBucket := make(map[string]bucketResult, len(targets))
	for res := range results {
		byBucket[res.bucket] = res
	}

	result := &Result{}
	var all []models.Recommendation
	for _, bucket := range targets {
		res, ok := byBucket[bucket]
		if !ok {
			continue
		}
		if res.err != nil {
			s.log.Warn("bucket scan failed",
				logger.String("bucket", bucket),
				logger.Error(res.err))
			result.Stats.Errors = append(result.Stats.Errors, fmt.Sprintf("%s: %v", bucket, res.err))
			continue
		}
		result.Stats.BucketsScanned++
		result.Stats.ObjectsScanned += res.objectCount
		result.Stats.TotalSizeBytes += res.sizeBytes
		all = append(all, res.recommendations...)
	}

	result.Recommendations = stampIDs(dedupe(all))
	return result, nil
}

func (s *Scanner) filterBuckets(buckets []cloud.BucketInfo, req models.ScanRequest) []string {
	include := toSet(req.IncludeBuckets)
	exclude := toSet(req.ExcludeBuckets)

	var targets []string
	for _, b := range buckets {
		if len(include) > 0 {
			if _, ok := include[b.Name]; !ok {
				continue
			}
		}
		if _, ok := exclude[b.Name]; ok {
			continue
		}
		if s.skippedPrefix(b.Name) {
			continue
		}
		targets = append(targets, b.Name)
	}
	return targets
}

func (s *Scanner) skippedPrefix(bucket string) bool {
	for _, prefix := range s.cfg.BucketPrefixSkip {
		if strings.HasPrefix(bucket, prefix) {
			return true
		}
	}
	return false
}

func (s *Scanner) scanBucket(ctx context.Context, bucket string, maxObjects int) bucketResult {
	res := bucketResult{bucket: bucket}

	objects, err := retryTransient(func() ([]cloud.ObjectInfo, error) {
		return s.store.ListObjects(ctx, bucket, maxObjects)
	})
	if err != nil {
		res.err = err
		return res
	}
	res.objectCount = len(objects)

	now := s.now()
	for _, obj := range objects {
		res.sizeBytes += obj.SizeBytes
		res.recommendations = append(res.recommendations, s.storageClass.Analyze(bucket, obj, now)...)
		res.recommendations = append(res.recommendations, s.accessPattern.AnalyzeObject(bucket, obj, now)...)
	}
	res.recommendations = append(res.recommendations, s.accessPattern.AnalyzePrefixes(bucket, objects, now)...)

	rules, err := retryTransient(func() ([]cloud.LifecycleRule, error) {
		return s.store.GetLifecycle(ctx, bucket)
	})
	switch {
	case err == nil || cloud.IsNotFound(err):
		res.recommendations = append(res.recommendations, s.lifecycle.Analyze(bucket, rules, res.sizeBytes)...)
	case cloud.IsAccessDenied(err):
		// No lifecycle visibility for this bucket, skip that analyzer.
	default:
		s.log.Warn("lifecycle read failed",
			logger.String("bucket", bucket),
			logger.Error(err))
	}

	uploads, err := retryTransient(func() ([]cloud.MultipartUpload, error) {
		return s.store.ListMultipartUploads(ctx, bucket, "")
	})
	switch {
	case err == nil:
		res.recommendations = append(res.recommendations, s.multipart.Analyze(ctx, bucket, uploads, now)...)
	case cloud.IsAccessDenied(err):
	default:
		s.log.Warn("multipart listing failed",
			logger.String("bucket", bucket),
			logger.Error(err))
	}

	return res
}

// dedupe keeps the first finding per (bucket, key, type). Per-object
// findings precede prefix aggregates in emission order, so they win ties.
func dedupe(recs []models.Recommendation) []models.Recommendation {
	type dedupeKey struct {
		bucket string
		key    string
		typ    models.RecommendationType
	}
	seen := make(map[dedupeKey]struct{}, len(recs))
	out := recs[:0]
	for _, rec := range recs {
		k := dedupeKey{rec.Bucket, rec.Key, rec.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func stampIDs(recs []models.Recommendation) []models.Recommendation {
	for i := range recs {
		recs[i].ID = uuid.NewString()
	}
	return recs
}

func retryTransient[T any](fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil && cloud.IsTransient(err) {
		v, err = fn()
	}
	return v, err
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
