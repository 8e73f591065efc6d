package models

import "time"

// ExecutionMode controls which recommendations are eligible for execution.
type ExecutionMode string

const (
	ModeDryRun   ExecutionMode = "dry_run"
	ModeSafe     ExecutionMode = "safe"
	ModeStandard ExecutionMode = "standard"
	ModeFull     ExecutionMode = "full"
)

// ActionStatus is the outcome of one attempted action.
type ActionStatus string

const (
	ActionDryRun   ActionStatus = "dry_run"
	ActionExecuted ActionStatus = "executed"
	ActionSkipped  ActionStatus = "skipped"
	ActionBlocked  ActionStatus = "blocked"
	ActionFailed   ActionStatus = "failed"
)

// RollbackState tracks whether an executed action has been rolled back.
type RollbackState string

const (
	RollbackNotApplicable RollbackState = "not_applicable"
	RollbackPending       RollbackState = "pending"
	RollbackRolledBack    RollbackState = "rolled_back"
	RollbackFailed        RollbackState = "failed"
)

// ExecuteRequest asks the executor to walk a run's recommendations.
type ExecuteRequest struct {
	RunID      string        `json:"run_id" binding:"required"`
	Mode       ExecutionMode `json:"mode"`
	DryRun     *bool         `json:"dry_run,omitempty"`
	MaxActions int           `json:"max_actions"`
}

// ActionResult describes one attempted action inside an execution batch.
type ActionResult struct {
	AuditID            string                 `json:"audit_id"`
	RecommendationID   string                 `json:"recommendation_id"`
	RecommendationType RecommendationType     `json:"recommendation_type"`
	Bucket             string                 `json:"bucket"`
	Key                string                 `json:"key,omitempty"`
	RiskLevel          RiskLevel              `json:"risk_level"`
	RequiresApproval   bool                   `json:"requires_approval"`
	Status             ActionStatus           `json:"status"`
	Message            string                 `json:"message"`
	Permitted          bool                   `json:"permitted"`
	RequiredPermissions []string              `json:"required_permissions"`
	MissingPermissions []string               `json:"missing_permissions"`
	Simulated          bool                   `json:"simulated"`
	PreChangeState     map[string]interface{} `json:"pre_change_state"`
	PostChangeState    map[string]interface{} `json:"post_change_state,omitempty"`
	RollbackAvailable  bool                   `json:"rollback_available"`
	RollbackStatus     RollbackState          `json:"rollback_status"`
}

// ExecuteResponse summarizes one execution batch.
// Invariant: Executed + Skipped + Blocked + Failed == len(ActionResults).
// Executed counts both live EXECUTED and DRY_RUN actions.
type ExecuteResponse struct {
	ExecutionID   string         `json:"execution_id"`
	RunID         string         `json:"run_id"`
	Status        RunStatus      `json:"status"`
	Mode          ExecutionMode  `json:"mode"`
	DryRun        bool           `json:"dry_run"`
	Eligible      int            `json:"eligible"`
	Executed      int            `json:"executed"`
	Skipped       int            `json:"skipped"`
	Blocked       int            `json:"blocked"`
	Failed        int            `json:"failed"`
	ActionResults []ActionResult `json:"action_results"`
	Errors        []string       `json:"errors,omitempty"`
	ExecutedAt    time.Time      `json:"executed_at"`
}

// AuditRecord is the immutable per-action audit row. Only RollbackStatus,
// RolledBackAt and Message may change after insert, via the rollback-status
// update path.
type AuditRecord struct {
	AuditID            string                 `json:"audit_id"`
	ExecutionID        string                 `json:"execution_id"`
	RunID              string                 `json:"run_id"`
	RecommendationID   string                 `json:"recommendation_id"`
	RecommendationType RecommendationType     `json:"recommendation_type"`
	Bucket             string                 `json:"bucket"`
	Key                string                 `json:"key,omitempty"`
	ActionStatus       ActionStatus           `json:"action_status"`
	Message            string                 `json:"message"`
	RiskLevel          RiskLevel              `json:"risk_level"`
	RequiresApproval   bool                   `json:"requires_approval"`
	Permitted          bool                   `json:"permitted"`
	RequiredPermissions []string              `json:"required_permissions"`
	MissingPermissions []string               `json:"missing_permissions"`
	Simulated          bool                   `json:"simulated"`
	PreChangeState     map[string]interface{} `json:"pre_change_state"`
	PostChangeState    map[string]interface{} `json:"post_change_state,omitempty"`
	RollbackAvailable  bool                   `json:"rollback_available"`
	RollbackStatus     RollbackState          `json:"rollback_status"`
	RolledBackAt       *time.Time             `json:"rolled_back_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}
