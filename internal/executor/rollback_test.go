package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costmgr/costmgr/internal/cloud"
	"github.com/costmgr/costmgr/internal/config"
	"github.com/costmgr/costmgr/internal/models"
)

func executedAudit(id string, t models.RecommendationType, pre map[string]interface{}) models.AuditRecord {
	return models.AuditRecord{
		AuditID:            id,
		ExecutionID:        "exec-1",
		RunID:              "r1",
		RecommendationID:   "rec-" + id,
		RecommendationType: t,
		Bucket:             "b1",
		Key:                "archive/a.dat",
		ActionStatus:       models.ActionExecuted,
		RollbackAvailable:  t.Reversible(),
		RollbackStatus:     models.RollbackPending,
		PreChangeState:     pre,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestRollbackStorageClass(t *testing.T) {
	store := newExecFake()
	record := executedAudit("a1", models.ChangeStorageClass,
		map[string]interface{}{"storage_class": config.ClassStandardIA})

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Attempted)
	assert.Equal(t, 1, resp.RolledBack)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.RollbackActionRolledBack, resp.Results[0].Status)
	assert.True(t, resp.Results[0].RolledBack)

	mutations := store.mutations()
	require.Len(t, mutations, 1)
	assert.Equal(t, "copy_self_with_class", mutations[0].verb)
	assert.Equal(t, config.ClassStandardIA, mutations[0].arg)
}

func TestRollbackStorageClassDefaultsToStandard(t *testing.T) {
	store := newExecFake()
	record := executedAudit("a1", models.ChangeStorageClass, map[string]interface{}{})

	_, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	mutations := store.mutations()
	require.Len(t, mutations, 1)
	assert.Equal(t, config.ClassStandard, mutations[0].arg)
}

func TestRollbackArchivedObjectNeedsRestore(t *testing.T) {
	store := newExecFake()
	store.verbErr["copy_self_with_class"] = &cloud.Error{
		Kind: cloud.KindInvalidState, CloudCode: "InvalidObjectState", Message: "archived",
	}
	record := executedAudit("a1", models.ChangeStorageClass,
		map[string]interface{}{"storage_class": config.ClassStandard})

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.RollbackActionFailed, resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Message, "restore first")
}

func TestRollbackLifecycleWithNullPreStateDeletes(t *testing.T) {
	store := newExecFake()
	store.lifecycle["b1"] = []cloud.LifecycleRule{autoArchiveRule()}
	record := executedAudit("a1", models.AddLifecyclePolicy,
		map[string]interface{}{"existing_lifecycle_rules": nil})

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.RolledBack)
	mutations := store.mutations()
	require.Len(t, mutations, 1)
	assert.Equal(t, "delete_lifecycle", mutations[0].verb)
	assert.NotContains(t, store.lifecycle, "b1")
}

func TestRollbackLifecycleRestoresOriginalRules(t *testing.T) {
	store := newExecFake()
	// Pre-state decoded from the audit row's JSON comes back as generic
	// maps, not typed rules.
	record := executedAudit("a1", models.AddLifecyclePolicy, map[string]interface{}{
		"existing_lifecycle_rules": []interface{}{
			map[string]interface{}{"id": "keep-me", "enabled": true, "expiration_days": float64(30)},
		},
	})

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.RolledBack)
	restored := store.lifecycle["b1"]
	require.Len(t, restored, 1)
	assert.Equal(t, "keep-me", restored[0].ID)
	assert.Equal(t, 30, restored[0].ExpirationDays)
}

func TestRollbackIneligibleRecordsSkipped(t *testing.T) {
	store := newExecFake()

	dryRunRecord := executedAudit("a1", models.ChangeStorageClass, map[string]interface{}{})
	dryRunRecord.ActionStatus = models.ActionDryRun
	dryRunRecord.RollbackAvailable = false

	deletion := executedAudit("a2", models.DeleteStaleObject, map[string]interface{}{})
	deletion.RollbackAvailable = false

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{dryRunRecord, deletion}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Attempted)
	assert.Equal(t, 2, resp.Skipped)
	assert.Zero(t, resp.RolledBack+resp.Failed)
	for _, result := range resp.Results {
		assert.Equal(t, models.RollbackActionSkipped, result.Status)
		assert.Equal(t, "not eligible", result.Message)
	}
	assert.Empty(t, store.mutations())
}

func TestRollbackDryRun(t *testing.T) {
	store := newExecFake()
	record := executedAudit("a1", models.ChangeStorageClass,
		map[string]interface{}{"storage_class": config.ClassStandard})

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1", DryRun: true},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Attempted)
	assert.Zero(t, resp.RolledBack+resp.Skipped+resp.Failed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.RollbackActionDryRun, resp.Results[0].Status)
	assert.Empty(t, store.mutations())
}

func TestRollbackStopOnFailure(t *testing.T) {
	store := newExecFake()
	store.verbErr["copy_self_with_class"] = &cloud.Error{Kind: cloud.KindOther, Message: "boom"}

	records := []models.AuditRecord{
		executedAudit("a1", models.ChangeStorageClass, map[string]interface{}{}),
		executedAudit("a2", models.ChangeStorageClass, map[string]interface{}{}),
	}

	resp, err := NewRollbackManager(store, fullPolicy()).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1", StopOnFailure: true},
		records, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Failed)
	assert.Len(t, resp.Results, 1, "iteration halts on first failure")
}

func TestRollbackVerifyBeforeRollback(t *testing.T) {
	store := newExecFake()
	policy := fullPolicy()
	policy.VerifyBeforeRollback = true

	record := executedAudit("a1", models.ChangeStorageClass,
		map[string]interface{}{"storage_class": config.ClassStandard})
	record.PostChangeState = map[string]interface{}{"storage_class": config.ClassGlacierIR}

	// Object is gone: verification fails before any mutation.
	resp, err := NewRollbackManager(store, policy).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Failed)
	assert.Empty(t, store.mutations())

	// Object still in the transitioned class: rollback proceeds.
	store2 := newExecFake()
	store2.heads["b1/archive/a.dat"] = &cloud.ObjectHead{
		Bucket: "b1", Key: "archive/a.dat", StorageClass: config.ClassGlacierIR,
	}
	resp, err = NewRollbackManager(store2, policy).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.RolledBack)
}

func TestRollbackVerifyRefusesClassMismatch(t *testing.T) {
	store := newExecFake()
	policy := fullPolicy()
	policy.VerifyBeforeRollback = true

	record := executedAudit("a1", models.ChangeStorageClass,
		map[string]interface{}{"storage_class": config.ClassStandard})
	record.PostChangeState = map[string]interface{}{"storage_class": config.ClassGlacierIR}

	// Some external actor already moved the object back to STANDARD; the
	// copy-back must not run against an unexpected class.
	store.heads["b1/archive/a.dat"] = &cloud.ObjectHead{
		Bucket: "b1", Key: "archive/a.dat", StorageClass: config.ClassStandard,
	}

	resp, err := NewRollbackManager(store, policy).Rollback(context.Background(),
		models.RollbackRequest{RunID: "r1"},
		[]models.AuditRecord{record}, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.RollbackActionFailed, resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Message, "expected GLACIER_IR")
	assert.Empty(t, store.mutations())
}
