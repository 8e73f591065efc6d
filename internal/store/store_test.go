package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costmgr/costmgr/internal/models"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "costmgr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecs() []models.Recommendation {
	return []models.Recommendation{{
		ID:                      uuid.NewString(),
		Bucket:                  "b1",
		Key:                     "archive/a.dat",
		Type:                    models.ChangeStorageClass,
		RiskLevel:               models.RiskMedium,
		Reason:                  "Object is cold, not modified for 220 days",
		EstimatedMonthlySavings: 0.019,
		SizeBytes:               1 << 30,
		StorageClass:            "STANDARD",
		TargetStorageClass:      "GLACIER_IR",
	}}
}

func sampleExecution(runID string, actions ...models.ActionResult) *models.ExecuteResponse {
	executed := 0
	for _, a := range actions {
		if a.Status == models.ActionExecuted || a.Status == models.ActionDryRun {
			executed++
		}
	}
	return &models.ExecuteResponse{
		ExecutionID:   uuid.NewString(),
		RunID:         runID,
		Status:        models.RunExecuted,
		Mode:          models.ModeFull,
		Eligible:      len(actions),
		Executed:      executed,
		ActionResults: actions,
		ExecutedAt:    time.Now().UTC(),
	}
}

func executedAction(recID string) models.ActionResult {
	return models.ActionResult{
		AuditID:            uuid.NewString(),
		RecommendationID:   recID,
		RecommendationType: models.ChangeStorageClass,
		Bucket:             "b1",
		Key:                "archive/a.dat",
		RiskLevel:          models.RiskLow,
		Status:             models.ActionExecuted,
		Message:            "storage class changed",
		Permitted:          true,
		RequiredPermissions: []string{"s3:GetObject", "s3:PutObject"},
		PreChangeState:     map[string]interface{}{"storage_class": "STANDARD"},
		PostChangeState:    map[string]interface{}{"storage_class": "GLACIER_IR"},
		RollbackAvailable:  true,
		RollbackStatus:     models.RollbackPending,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun(sampleRecs(), models.ScanStats{BucketsScanned: 1, ObjectsScanned: 1})
	require.NoError(t, err)
	require.NotEmpty(t, run.RunID)
	assert.Equal(t, models.RunScanned, run.Status)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = s.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunReturnsACopy(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	got.Recommendations[0].Bucket = "mutated"

	again, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "b1", again.Recommendations[0].Bucket)
}

func TestListRunsOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s := openTestStore(t).WithClock(func() time.Time { return clock })

	first, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)
	clock = base.Add(time.Minute)
	second, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)

	summaries := s.ListRuns()
	require.Len(t, summaries, 2)
	assert.Equal(t, second.RunID, summaries[0].RunID)
	assert.Equal(t, first.RunID, summaries[1].RunID)

	// Touching the older run moves it to the front.
	clock = base.Add(2 * time.Minute)
	_, err = s.SetScores(first.RunID, nil, nil, models.SavingsSummary{})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, s.ListRuns()[0].RunID)
}

func TestSetScoresIdempotent(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t).WithClock(func() time.Time { return clock })

	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)

	scores := []models.RiskScore{{
		RecommendationID: run.Recommendations[0].ID,
		RiskScore:        21,
		ConfidenceScore:  77,
		RiskLevel:        models.RiskLow,
		ConfidenceLevel:  models.ConfidenceHigh,
		SafeToAutomate:   true,
	}}
	summary := models.SavingsSummary{TotalMonthlySavings: 0.019, HighConfidenceCount: 1}

	first, err := s.SetScores(run.RunID, scores, nil, summary)
	require.NoError(t, err)
	assert.Equal(t, models.RunScored, first.Status)

	second, err := s.SetScores(run.RunID, scores, nil, summary)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = s.SetScores("missing", scores, nil, summary)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetExecutionAccumulatesAudit(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)
	recID := run.Recommendations[0].ID

	first := sampleExecution(run.RunID, executedAction(recID))
	_, err = s.SetExecution(run.RunID, first)
	require.NoError(t, err)

	second := sampleExecution(run.RunID, executedAction(recID))
	updated, err := s.SetExecution(run.RunID, second)
	require.NoError(t, err)

	assert.Equal(t, models.RunExecuted, updated.Status)
	require.NotNil(t, updated.Execution)
	assert.Equal(t, second.ExecutionID, updated.Execution.ExecutionID)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)

	all, err := s.ListExecutionAudit(run.RunID, "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyFirst, err := s.ListExecutionAudit(run.RunID, first.ExecutionID, nil)
	require.NoError(t, err)
	require.Len(t, onlyFirst, 1)
	assert.Equal(t, first.ActionResults[0].AuditID, onlyFirst[0].AuditID)
}

func TestSetExecutionUpsertsByAuditID(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)

	action := executedAction(run.Recommendations[0].ID)
	exec := sampleExecution(run.RunID, action)
	_, err = s.SetExecution(run.RunID, exec)
	require.NoError(t, err)

	// Replaying the same batch must not duplicate rows.
	_, err = s.SetExecution(run.RunID, exec)
	require.NoError(t, err)

	records, err := s.ListExecutionAudit(run.RunID, "", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListExecutionAuditEmptyFilterMeansAll(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)
	recID := run.Recommendations[0].ID

	a1, a2 := executedAction(recID), executedAction(recID)
	_, err = s.SetExecution(run.RunID, sampleExecution(run.RunID, a1, a2))
	require.NoError(t, err)

	all, err := s.ListExecutionAudit(run.RunID, "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	alsoAll, err := s.ListExecutionAudit(run.RunID, "", []string{})
	require.NoError(t, err)
	assert.Equal(t, all, alsoAll)

	filtered, err := s.ListExecutionAudit(run.RunID, "", []string{a2.AuditID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, a2.AuditID, filtered[0].AuditID)
}

func TestUpdateRollbackStatus(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)

	action := executedAction(run.Recommendations[0].ID)
	_, err = s.SetExecution(run.RunID, sampleExecution(run.RunID, action))
	require.NoError(t, err)

	msg := "restored STANDARD"
	ok, err := s.UpdateRollbackStatus(action.AuditID, models.RollbackRolledBack, &msg)
	require.NoError(t, err)
	require.True(t, ok)

	records, err := s.ListExecutionAudit(run.RunID, "", []string{action.AuditID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RollbackRolledBack, records[0].RollbackStatus)
	assert.Equal(t, msg, records[0].Message)
	require.NotNil(t, records[0].RolledBackAt)

	// A nil message preserves the stored one; a FAILED status does not
	// clear rolled_back_at.
	ok, err = s.UpdateRollbackStatus(action.AuditID, models.RollbackFailed, nil)
	require.NoError(t, err)
	require.True(t, ok)

	records, err = s.ListExecutionAudit(run.RunID, "", []string{action.AuditID})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackFailed, records[0].RollbackStatus)
	assert.Equal(t, msg, records[0].Message)

	ok, err = s.UpdateRollbackStatus("missing", models.RollbackRolledBack, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateRollbackStatusBumpsRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s := openTestStore(t).WithClock(func() time.Time { return clock })

	run, err := s.CreateRun(sampleRecs(), models.ScanStats{})
	require.NoError(t, err)
	action := executedAction(run.Recommendations[0].ID)
	_, err = s.SetExecution(run.RunID, sampleExecution(run.RunID, action))
	require.NoError(t, err)

	clock = base.Add(time.Hour)
	ok, err := s.UpdateRollbackStatus(action.AuditID, models.RollbackRolledBack, nil)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, clock, got.UpdatedAt)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costmgr.db")
	s, err := Open(path)
	require.NoError(t, err)

	run, err := s.CreateRun(sampleRecs(), models.ScanStats{BucketsScanned: 1})
	require.NoError(t, err)
	action := executedAction(run.Recommendations[0].ID)
	_, err = s.SetExecution(run.RunID, sampleExecution(run.RunID, action))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunExecuted, got.Status)
	assert.Equal(t, run.Recommendations[0].ID, got.Recommendations[0].ID)

	records, err := reopened.ListExecutionAudit(run.RunID, "", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
