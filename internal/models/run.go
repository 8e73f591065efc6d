package models

import "time"

// RunStatus is the run state machine: SCANNED -> SCORED -> EXECUTED.
// Re-scoring and re-execution are permitted; status never moves backwards.
type RunStatus string

const (
	RunScanned  RunStatus = "scanned"
	RunScored   RunStatus = "scored"
	RunExecuted RunStatus = "executed"
)

// rank orders statuses for monotonic advancement.
func (s RunStatus) rank() int {
	switch s {
	case RunScored:
		return 1
	case RunExecuted:
		return 2
	default:
		return 0
	}
}

// Advance returns the higher of the two statuses, so a completed execute
// never reverts a run to SCORED.
func (s RunStatus) Advance(to RunStatus) RunStatus {
	if to.rank() > s.rank() {
		return to
	}
	return s
}

// ScanStats carries scanner telemetry attached to a run.
type ScanStats struct {
	BucketsScanned int      `json:"buckets_scanned"`
	ObjectsScanned int      `json:"objects_scanned"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	Errors         []string `json:"errors,omitempty"`
}

// Run is the aggregation root for one scan and everything that follows it.
type Run struct {
	RunID           string            `json:"run_id"`
	Status          RunStatus         `json:"status"`
	Recommendations []Recommendation  `json:"recommendations"`
	Scores          []RiskScore       `json:"scores,omitempty"`
	SavingsDetails  []SavingsEstimate `json:"savings_details,omitempty"`
	SavingsSummary  *SavingsSummary   `json:"savings_summary,omitempty"`
	Execution       *ExecuteResponse  `json:"execution,omitempty"`
	Stats           ScanStats         `json:"stats"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// RunSummary is the list-view projection of a run.
type RunSummary struct {
	RunID                   string    `json:"run_id"`
	Status                  RunStatus `json:"status"`
	RecommendationCount     int       `json:"recommendation_count"`
	EstimatedMonthlySavings float64   `json:"estimated_monthly_savings"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Summary projects the run into its list view.
func (r *Run) Summary() RunSummary {
	var savings float64
	for _, rec := range r.Recommendations {
		savings += rec.EstimatedMonthlySavings
	}
	return RunSummary{
		RunID:                   r.RunID,
		Status:                  r.Status,
		RecommendationCount:     len(r.Recommendations),
		EstimatedMonthlySavings: savings,
		UpdatedAt:               r.UpdatedAt,
	}
}

// ScanRequest filters which buckets a scan visits.
type ScanRequest struct {
	IncludeBuckets      []string `json:"include_buckets,omitempty"`
	ExcludeBuckets      []string `json:"exclude_buckets,omitempty"`
	MaxObjectsPerBucket int      `json:"max_objects_per_bucket,omitempty"`
}

// ScanResponse is returned when a scan creates a run.
type ScanResponse struct {
	RunID                   string           `json:"run_id"`
	Status                  RunStatus        `json:"status"`
	Recommendations         []Recommendation `json:"recommendations"`
	EstimatedMonthlySavings float64          `json:"estimated_monthly_savings"`
	Stats                   ScanStats        `json:"stats"`
	ScannedAt               time.Time        `json:"scanned_at"`
}

// ScoreResponse is returned when a run is scored.
type ScoreResponse struct {
	RunID            string            `json:"run_id"`
	Status           RunStatus         `json:"status"`
	Scores           []RiskScore       `json:"scores"`
	SavingsDetails   []SavingsEstimate `json:"savings_details"`
	SavingsSummary   SavingsSummary    `json:"savings_summary"`
	SafeToAutomate   int               `json:"safe_to_automate"`
	RequiresApproval int               `json:"requires_approval"`
	ScoredAt         time.Time         `json:"scored_at"`
}
