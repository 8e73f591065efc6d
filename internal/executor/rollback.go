package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/models"
)

// RollbackManager undoes executed reversible actions using the pre-state
// captured in their audit rows.
type RollbackManager struct {
	store  cloud.ObjectStore
	policy config.Executor
	log    logger.Logger
	now    func() time.Time
}

// NewRollbackManager builds a rollback manager bound to the given store
// and policy.
func NewRollbackManager(store cloud.ObjectStore, policy config.Executor) *RollbackManager {
	return &RollbackManager{
		store:  store,
		policy: policy,
		log:    logger.New("rollback"),
		now:    time.Now,
	}
}

// Rollback processes the audit records in submission order. Attempted
// always equals the number of records passed in; audit-row status
// updates are the caller's responsibility.
func (m *RollbackManager) Rollback(ctx context.Context, req models.RollbackRequest, records []models.AuditRecord, executionID string) (*models.RollbackResponse, error) {
	resp := &models.RollbackResponse{
		RunID:       req.RunID,
		ExecutionID: executionID,
		DryRun:      req.DryRun,
		Attempted:   len(records),
		ProcessedAt: m.now().UTC(),
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}

		result := models.RollbackActionResult{
			AuditID:            record.AuditID,
			RecommendationID:   record.RecommendationID,
			RecommendationType: record.RecommendationType,
		}

		switch {
		case !eligibleForRollback(record):
			result.Status = models.RollbackActionSkipped
			result.Message = "not eligible"
			resp.Skipped++

		case req.DryRun:
			result.Status = models.RollbackActionDryRun
			result.Message = fmt.Sprintf("dry run: would roll back %s", record.RecommendationType)

		default:
			if err := m.rollbackOne(ctx, record); err != nil {
				result.Status = models.RollbackActionFailed
				result.Message = err.Error()
				resp.Failed++
				m.log.Warn("rollback failed",
					logger.String("audit_id", record.AuditID),
					logger.Error(err))
			} else {
				result.Status = models.RollbackActionRolledBack
				result.RolledBack = true
				result.Message = fmt.Sprintf("rolled back %s", record.RecommendationType)
				resp.RolledBack++
			}
		}

		resp.Results = append(resp.Results, result)
		if result.Status == models.RollbackActionFailed && req.StopOnFailure {
			break
		}
	}

	return resp, nil
}

func eligibleForRollback(record models.AuditRecord) bool {
	return record.RollbackAvailable &&
		record.ActionStatus == models.ActionExecuted &&
		record.RecommendationType.Reversible()
}

func (m *RollbackManager) rollbackOne(ctx context.Context, record models.AuditRecord) error {
	switch record.RecommendationType {
	case models.ChangeStorageClass:
		return m.rollbackStorageClass(ctx, record)
	case models.AddLifecyclePolicy:
		return m.rollbackLifecycle(ctx, record)
	default:
		return fmt.Errorf("type %q has no rollback path", record.RecommendationType)
	}
}

func (m *RollbackManager) rollbackStorageClass(ctx context.Context, record models.AuditRecord) error {
	if m.policy.VerifyBeforeRollback {
		head, err := m.store.HeadObject(ctx, record.Bucket, record.Key)
		if err != nil {
			return fmt.Errorf("verify object: %w", err)
		}
		if want, ok := record.PostChangeState["storage_class"].(string); ok && want != "" && head.StorageClass != want {
			return fmt.Errorf("object is in %s, expected %s; refusing copy-back", head.StorageClass, want)
		}
	}

	class := config.ClassStandard
	if v, ok := record.PreChangeState["storage_class"].(string); ok && v != "" {
		class = v
	}

	err := m.store.CopySelfWithClass(ctx, record.Bucket, record.Key, class)
	if err != nil && cloud.KindOf(err) == cloud.KindInvalidState {
		return fmt.Errorf("object is archived, restore first: %w", err)
	}
	return err
}

func (m *RollbackManager) rollbackLifecycle(ctx context.Context, record models.AuditRecord) error {
	rules, err := lifecycleRulesFromState(record.PreChangeState["existing_lifecycle_rules"])
	if err != nil {
		return fmt.Errorf("decode prior lifecycle rules: %w", err)
	}
	if rules == nil {
		err := m.store.DeleteLifecycle(ctx, record.Bucket)
		if cloud.IsNotFound(err) {
			return nil
		}
		return err
	}
	return m.store.PutLifecycle(ctx, record.Bucket, rules)
}

// lifecycleRulesFromState tolerates both in-process captures and rows
// reloaded from JSON.
func lifecycleRulesFromState(v interface{}) ([]cloud.LifecycleRule, error) {
	if v == nil {
		return nil, nil
	}
	if rules, ok := v.([]cloud.LifecycleRule); ok {
		return rules, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rules []cloud.LifecycleRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
