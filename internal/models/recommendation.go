package models

import "time"

// RecommendationType identifies the kind of cost-optimization action.
type RecommendationType string

const (
	ChangeStorageClass     RecommendationType = "change_storage_class"
	AddLifecyclePolicy     RecommendationType = "add_lifecycle_policy"
	DeleteIncompleteUpload RecommendationType = "delete_incomplete_upload"
	DeleteStaleObject      RecommendationType = "delete_stale_object"
	DeleteOldVersion       RecommendationType = "delete_old_version"
)

// RiskLevel buckets a recommendation's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is a single cost-optimization finding produced by the
// scanner. It is immutable once created. Fields beyond the common envelope
// are populated per type: TargetStorageClass for CHANGE_STORAGE_CLASS,
// UploadID for DELETE_INCOMPLETE_UPLOAD and VersionID for DELETE_OLD_VERSION.
type Recommendation struct {
	ID                      string             `json:"id"`
	Bucket                  string             `json:"bucket"`
	Key                     string             `json:"key,omitempty"`
	Type                    RecommendationType `json:"recommendation_type"`
	RiskLevel               RiskLevel          `json:"risk_level"`
	Reason                  string             `json:"reason"`
	RecommendedAction       string             `json:"recommended_action"`
	EstimatedMonthlySavings float64            `json:"estimated_monthly_savings"`
	SizeBytes               int64              `json:"size_bytes"`
	StorageClass            string             `json:"storage_class,omitempty"`
	TargetStorageClass      string             `json:"target_storage_class,omitempty"`
	UploadID                string             `json:"upload_id,omitempty"`
	VersionID               string             `json:"version_id,omitempty"`
	LastModified            *time.Time         `json:"last_modified,omitempty"`
}

// BucketLevel reports whether the finding targets a whole bucket rather
// than a single object.
func (r Recommendation) BucketLevel() bool {
	return r.Key == ""
}

// Destructive reports whether executing the recommendation permanently
// removes object data.
func (t RecommendationType) Destructive() bool {
	return t == DeleteStaleObject || t == DeleteOldVersion
}

// Reversible reports whether the pre-change snapshot of an executed action
// of this type suffices to restore prior state.
func (t RecommendationType) Reversible() bool {
	return t == ChangeStorageClass || t == AddLifecyclePolicy
}
