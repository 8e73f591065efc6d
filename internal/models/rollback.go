package models

import "time"

// RollbackActionStatus is the outcome of one rollback attempt.
type RollbackActionStatus string

const (
	RollbackActionDryRun     RollbackActionStatus = "dry_run"
	RollbackActionRolledBack RollbackActionStatus = "rolled_back"
	RollbackActionSkipped    RollbackActionStatus = "skipped"
	RollbackActionFailed     RollbackActionStatus = "failed"
)

// RollbackRequest asks the rollback manager to undo executed actions.
// An empty AuditIDs list means "no audit-id filter": all records of the
// chosen execution are considered.
type RollbackRequest struct {
	RunID         string   `json:"run_id" binding:"required"`
	ExecutionID   string   `json:"execution_id,omitempty"`
	AuditIDs      []string `json:"audit_ids,omitempty"`
	DryRun        bool     `json:"dry_run"`
	StopOnFailure bool     `json:"stop_on_failure"`
}

// RollbackActionResult describes one rollback attempt.
type RollbackActionResult struct {
	AuditID            string               `json:"audit_id"`
	RecommendationID   string               `json:"recommendation_id"`
	RecommendationType RecommendationType   `json:"recommendation_type"`
	Status             RollbackActionStatus `json:"status"`
	Message            string               `json:"message"`
	RolledBack         bool                 `json:"rolled_back"`
}

// RollbackResponse summarizes one rollback batch.
// Invariant: Attempted == len(audit records passed in) and
// RolledBack + Skipped + Failed + dry-run entries == Attempted.
type RollbackResponse struct {
	RunID       string                 `json:"run_id"`
	ExecutionID string                 `json:"execution_id"`
	DryRun      bool                   `json:"dry_run"`
	Attempted   int                    `json:"attempted"`
	RolledBack  int                    `json:"rolled_back"`
	Skipped     int                    `json:"skipped"`
	Failed      int                    `json:"failed"`
	Results     []RollbackActionResult `json:"results"`
	ProcessedAt time.Time              `json:"processed_at"`
}
