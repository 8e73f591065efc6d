// Package executor walks a run's recommendations under admission
// control, performs the cloud mutations and emits one audit row per
// attempted action. Actions run strictly in order so the audit trail,
// failure threshold and pacing delays stay deterministic.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/models"
)

// Executor performs recommendation actions against the object store.
type Executor struct {
	store  cloud.ObjectStore
	policy config.Executor
	log    logger.Logger
	now    func() time.Time
}

// New builds an executor bound to the given store and policy.
func New(store cloud.ObjectStore, policy config.Executor) *Executor {
	return &Executor{
		store:  store,
		policy: policy,
		log:    logger.New("executor"),
		now:    time.Now,
	}
}

// WithClock overrides the clock. Intended for tests.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// RequiredPermissions returns the permission set an action type needs.
func RequiredPermissions(t models.RecommendationType) []string {
	switch t {
	case models.ChangeStorageClass:
		return []string{"s3:GetObject", "s3:PutObject"}
	case models.AddLifecyclePolicy:
		return []string{"s3:GetLifecycleConfiguration", "s3:PutLifecycleConfiguration"}
	case models.DeleteIncompleteUpload:
		return []string{"s3:ListBucketMultipartUploads", "s3:AbortMultipartUpload"}
	case models.DeleteStaleObject, models.DeleteOldVersion:
		return []string{"s3:GetObject", "s3:DeleteObject"}
	default:
		return nil
	}
}

// resolveMode derives the effective mode and dry-run flag from the
// request. DRY_RUN mode always simulates; otherwise an explicit dry_run
// override wins and an explicit mode without override runs live.
func resolveMode(req models.ExecuteRequest) (models.ExecutionMode, bool) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeDryRun
	}
	if mode == models.ModeDryRun {
		return mode, true
	}
	if req.DryRun != nil {
		return mode, *req.DryRun
	}
	return mode, false
}

func modeEligible(mode models.ExecutionMode, score models.RiskScore) bool {
	switch mode {
	case models.ModeDryRun, models.ModeFull:
		return true
	case models.ModeSafe:
		return score.SafeToAutomate
	case models.ModeStandard:
		return !score.RequiresApproval
	default:
		return false
	}
}

// Execute processes the recommendations in order and returns the batch
// summary. Per-action failures are reported inside the response; only a
// cancelled context surfaces as an error.
func (e *Executor) Execute(ctx context.Context, req models.ExecuteRequest, recs []models.Recommendation, scores []models.RiskScore) (*models.ExecuteResponse, error) {
	mode, dryRun := resolveMode(req)
	maxActions := req.MaxActions
	if maxActions <= 0 {
		maxActions = e.policy.MaxActions
	}

	scoreByRec := make(map[string]models.RiskScore, len(scores))
	for _, sc := range scores {
		scoreByRec[sc.RecommendationID] = sc
	}

	resp := &models.ExecuteResponse{
		ExecutionID: uuid.NewString(),
		RunID:       req.RunID,
		Status:      models.RunExecuted,
		Mode:        mode,
		DryRun:      dryRun,
		ExecutedAt:  e.now().UTC(),
	}

	e.log.Info("execution started",
		logger.String("execution_id", resp.ExecutionID),
		logger.String("run_id", req.RunID),
		logger.String("mode", string(mode)),
		logger.Bool("dry_run", dryRun),
		logger.Int("recommendations", len(recs)))

	failures := 0
	for i, rec := range recs {
		if ctx.Err() != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("stopped: %v", ctx.Err()))
			break
		}

		result := e.processAction(ctx, rec, scoreByRec, mode, dryRun, i >= maxActions)
		resp.ActionResults = append(resp.ActionResults, result.ActionResult)

		switch result.Status {
		case models.ActionExecuted, models.ActionDryRun:
			resp.Executed++
		case models.ActionSkipped:
			resp.Skipped++
		case models.ActionBlocked:
			resp.Blocked++
		case models.ActionFailed:
			resp.Failed++
		}
		if result.eligible {
			resp.Eligible++
		}

		if result.Status == models.ActionFailed {
			failures++
			if failures >= e.policy.MaxFailures {
				resp.Errors = append(resp.Errors,
					fmt.Sprintf("stopped: exceeded %d failures", e.policy.MaxFailures))
				break
			}
			if err := sleepCtx(ctx, e.policy.DelayAfterFailure); err != nil {
				break
			}
			continue
		}
		if result.Status == models.ActionExecuted {
			if err := sleepCtx(ctx, e.policy.DelayBetweenActions); err != nil {
				break
			}
		}
	}

	e.log.Info("execution finished",
		logger.String("execution_id", resp.ExecutionID),
		logger.Int("executed", resp.Executed),
		logger.Int("skipped", resp.Skipped),
		logger.Int("blocked", resp.Blocked),
		logger.Int("failed", resp.Failed))

	return resp, nil
}

// pipelineResult augments the wire model with loop-internal flags.
type pipelineResult struct {
	models.ActionResult
	eligible bool
}

func (e *Executor) processAction(ctx context.Context, rec models.Recommendation, scores map[string]models.RiskScore, mode models.ExecutionMode, dryRun, overLimit bool) pipelineResult {
	required := RequiredPermissions(rec.Type)
	result := pipelineResult{ActionResult: models.ActionResult{
		AuditID:             uuid.NewString(),
		RecommendationID:    rec.ID,
		RecommendationType:  rec.Type,
		Bucket:              rec.Bucket,
		Key:                 rec.Key,
		RiskLevel:           rec.RiskLevel,
		RequiredPermissions: required,
		RollbackStatus:      models.RollbackNotApplicable,
		PreChangeState: map[string]interface{}{
			"bucket": rec.Bucket,
			"key":    rec.Key,
		},
	}}

	if overLimit {
		result.Status = models.ActionSkipped
		result.Message = "max actions limit reached"
		return result
	}

	score, ok := scores[rec.ID]
	if !ok {
		result.Status = models.ActionFailed
		result.Message = "Missing risk score"
		return result
	}
	result.RiskLevel = score.RiskLevel
	result.RequiresApproval = score.RequiresApproval

	if !modeEligible(mode, score) {
		result.Status = models.ActionSkipped
		result.Message = fmt.Sprintf("not eligible in %s mode", mode)
		return result
	}
	result.eligible = true

	if rec.Type.Destructive() && !e.policy.AllowDestructive {
		result.Status = models.ActionBlocked
		result.Message = "destructive action disabled, set allow_destructive to enable"
		return result
	}

	var missing []string
	for _, perm := range required {
		if !e.policy.HasPermission(perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		result.Status = models.ActionBlocked
		result.MissingPermissions = missing
		result.Message = fmt.Sprintf("missing permissions: %v", missing)
		return result
	}
	result.Permitted = true

	if dryRun {
		result.Status = models.ActionDryRun
		result.Simulated = true
		result.Message = fmt.Sprintf("dry run: %s", rec.RecommendedAction)
		result.PostChangeState = e.simulatedPostState(rec)
		return result
	}

	preState, err := e.capturePreState(ctx, rec)
	if err != nil {
		result.Status = models.ActionFailed
		result.Message = fmt.Sprintf("pre-state capture failed: %v", err)
		return result
	}
	result.PreChangeState = preState

	postState, err := e.perform(ctx, rec, preState)
	if err != nil {
		result.Status = models.ActionFailed
		result.Message = err.Error()
		e.log.Warn("action failed",
			logger.String("recommendation_id", rec.ID),
			logger.String("type", string(rec.Type)),
			logger.Error(err))
		return result
	}

	result.Status = models.ActionExecuted
	result.Message = rec.RecommendedAction
	result.PostChangeState = postState
	if rec.Type.Reversible() {
		result.RollbackAvailable = true
		result.RollbackStatus = models.RollbackPending
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
