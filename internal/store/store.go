// Package store is the durable run store: the single writer for run
// state and the append-only execution audit log. Mutations update the
// in-memory view and the SQLite file inside the same critical section,
// so a restart recovers a consistent picture.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/models"
)

// ErrNotFound is returned when the referenced run does not exist.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id               TEXT PRIMARY KEY,
	status               TEXT NOT NULL,
	recommendations_json TEXT NOT NULL,
	scores_json          TEXT,
	savings_details_json TEXT,
	savings_summary_json TEXT,
	execution_json       TEXT,
	stats_json           TEXT,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at DESC);

CREATE TABLE IF NOT EXISTS execution_audit (
	audit_id                  TEXT PRIMARY KEY,
	execution_id              TEXT NOT NULL,
	run_id                    TEXT NOT NULL REFERENCES runs(run_id),
	recommendation_id         TEXT NOT NULL,
	recommendation_type       TEXT NOT NULL,
	bucket                    TEXT NOT NULL,
	object_key                TEXT,
	action_status             TEXT NOT NULL,
	message                   TEXT,
	risk_level                TEXT,
	requires_approval         INTEGER NOT NULL DEFAULT 0,
	permitted                 INTEGER NOT NULL DEFAULT 0,
	required_permissions_json TEXT,
	missing_permissions_json  TEXT,
	simulated                 INTEGER NOT NULL DEFAULT 0,
	pre_change_state_json     TEXT,
	post_change_state_json    TEXT,
	rollback_available        INTEGER NOT NULL DEFAULT 0,
	rollback_status           TEXT NOT NULL,
	rolled_back_at            TIMESTAMP,
	created_at                TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_run_created ON execution_audit(run_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_execution ON execution_audit(execution_id);
`

// RunStore is the durable state machine for runs and audit rows.
type RunStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	runs map[string]*models.Run
	log  logger.Logger
	now  func() time.Time
}

// Open opens (or creates) the store at path and loads existing runs.
func Open(path string) (*RunStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One writer at a time keeps SQLITE_BUSY out of the hot path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &RunStore{
		db:   db,
		runs: make(map[string]*models.Run),
		log:  logger.New("store"),
		now:  time.Now,
	}
	if err := s.loadRuns(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock. Intended for tests.
func (s *RunStore) WithClock(now func() time.Time) *RunStore {
	s.now = now
	return s
}

// Close releases the underlying database handle.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) loadRuns() error {
	rows, err := s.db.Query(`SELECT run_id, status, recommendations_json, scores_json,
		savings_details_json, savings_summary_json, execution_json, stats_json,
		created_at, updated_at FROM runs`)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var run models.Run
		var recsJSON string
		var scoresJSON, detailsJSON, summaryJSON, execJSON, statsJSON sql.NullString
		if err := rows.Scan(&run.RunID, &run.Status, &recsJSON, &scoresJSON,
			&detailsJSON, &summaryJSON, &execJSON, &statsJSON,
			&run.CreatedAt, &run.UpdatedAt); err != nil {
			return fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(recsJSON), &run.Recommendations); err != nil {
			return fmt.Errorf("decode run %s: %w", run.RunID, err)
		}
		unmarshalNullable(scoresJSON, &run.Scores)
		unmarshalNullable(detailsJSON, &run.SavingsDetails)
		unmarshalNullable(summaryJSON, &run.SavingsSummary)
		unmarshalNullable(execJSON, &run.Execution)
		unmarshalNullable(statsJSON, &run.Stats)
		s.runs[run.RunID] = &run
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	s.log.Info("store loaded", logger.Int("runs", len(s.runs)))
	return nil
}

func unmarshalNullable(src sql.NullString, dst interface{}) {
	if src.Valid && src.String != "" {
		// Corrupt optional columns degrade to zero values rather than
		// failing the whole load.
		_ = json.Unmarshal([]byte(src.String), dst)
	}
}

// CreateRun inserts a new run with status SCANNED.
func (s *RunStore) CreateRun(recs []models.Recommendation, stats models.ScanStats) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	run := &models.Run{
		RunID:           uuid.NewString(),
		Status:          models.RunScanned,
		Recommendations: recs,
		Stats:           stats,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.Exec(`INSERT INTO runs (run_id, status, recommendations_json, stats_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Status, mustJSON(run.Recommendations), mustJSON(run.Stats),
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	s.runs[run.RunID] = run
	return cloneRun(run), nil
}

// GetRun returns a copy of the run, or ErrNotFound.
func (s *RunStore) GetRun(runID string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns run summaries ordered by updated_at descending.
func (s *RunStore) ListRuns() []models.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		summaries = append(summaries, run.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].RunID < summaries[j].RunID
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// SetScores overwrites the run's scores and savings and advances its
// status to SCORED. Idempotent: a second identical call leaves the run
// in the same observable state.
func (s *RunStore) SetScores(runID string, scores []models.RiskScore, details []models.SavingsEstimate, summary models.SavingsSummary) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := *run
	updated.Scores = scores
	updated.SavingsDetails = details
	updated.SavingsSummary = &summary
	updated.Status = run.Status.Advance(models.RunScored)
	updated.UpdatedAt = s.now().UTC()

	_, err := s.db.Exec(`UPDATE runs SET status = ?, scores_json = ?, savings_details_json = ?,
		savings_summary_json = ?, updated_at = ? WHERE run_id = ?`,
		updated.Status, mustJSON(updated.Scores), mustJSON(updated.SavingsDetails),
		mustJSON(updated.SavingsSummary), updated.UpdatedAt, runID)
	if err != nil {
		return nil, fmt.Errorf("update scores: %w", err)
	}

	s.runs[runID] = &updated
	return cloneRun(&updated), nil
}

// SetExecution records an execution batch: the run's execution pointer is
// overwritten and every action result is upserted as an audit row, all in
// one transaction. Audit rows from earlier executions remain.
func (s *RunStore) SetExecution(runID string, exec *models.ExecuteResponse) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	updated := *run
	updated.Execution = exec
	updated.Status = run.Status.Advance(models.RunExecuted)
	updated.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin execution write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE runs SET status = ?, execution_json = ?, updated_at = ? WHERE run_id = ?`,
		updated.Status, mustJSON(exec), now, runID); err != nil {
		return nil, fmt.Errorf("update run execution: %w", err)
	}

	for _, action := range exec.ActionResults {
		if err := upsertAudit(tx, runID, exec.ExecutionID, action, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execution write: %w", err)
	}

	s.runs[runID] = &updated
	return cloneRun(&updated), nil
}

func upsertAudit(tx *sql.Tx, runID, executionID string, action models.ActionResult, createdAt time.Time) error {
	_, err := tx.Exec(`INSERT INTO execution_audit (
			audit_id, execution_id, run_id, recommendation_id, recommendation_type,
			bucket, object_key, action_status, message, risk_level,
			requires_approval, permitted, required_permissions_json, missing_permissions_json,
			simulated, pre_change_state_json, post_change_state_json,
			rollback_available, rollback_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(audit_id) DO UPDATE SET
			action_status = excluded.action_status,
			message = excluded.message,
			post_change_state_json = excluded.post_change_state_json,
			rollback_available = excluded.rollback_available,
			rollback_status = excluded.rollback_status`,
		action.AuditID, executionID, runID, action.RecommendationID, action.RecommendationType,
		action.Bucket, action.Key, action.Status, action.Message, action.RiskLevel,
		action.RequiresApproval, action.Permitted,
		mustJSON(action.RequiredPermissions), mustJSON(action.MissingPermissions),
		action.Simulated, mustJSON(action.PreChangeState), mustJSON(action.PostChangeState),
		action.RollbackAvailable, action.RollbackStatus, createdAt)
	if err != nil {
		return fmt.Errorf("upsert audit %s: %w", action.AuditID, err)
	}
	return nil
}

// ListExecutionAudit returns audit rows for a run, newest first. An empty
// executionID or auditIDs filter means "no filter on that dimension".
func (s *RunStore) ListExecutionAudit(runID, executionID string, auditIDs []string) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.Builder{}
	query.WriteString(`SELECT audit_id, execution_id, run_id, recommendation_id, recommendation_type,
		bucket, object_key, action_status, message, risk_level,
		requires_approval, permitted, required_permissions_json, missing_permissions_json,
		simulated, pre_change_state_json, post_change_state_json,
		rollback_available, rollback_status, rolled_back_at, created_at
		FROM execution_audit WHERE run_id = ?`)
	args := []interface{}{runID}

	if executionID != "" {
		query.WriteString(" AND execution_id = ?")
		args = append(args, executionID)
	}
	if len(auditIDs) > 0 {
		query.WriteString(" AND audit_id IN (?" + strings.Repeat(", ?", len(auditIDs)-1) + ")")
		for _, id := range auditIDs {
			args = append(args, id)
		}
	}
	query.WriteString(" ORDER BY created_at DESC, rowid ASC")

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var key, message, riskLevel sql.NullString
		var requiredJSON, missingJSON, preJSON, postJSON sql.NullString
		var rolledBackAt sql.NullTime
		if err := rows.Scan(&rec.AuditID, &rec.ExecutionID, &rec.RunID,
			&rec.RecommendationID, &rec.RecommendationType,
			&rec.Bucket, &key, &rec.ActionStatus, &message, &riskLevel,
			&rec.RequiresApproval, &rec.Permitted, &requiredJSON, &missingJSON,
			&rec.Simulated, &preJSON, &postJSON,
			&rec.RollbackAvailable, &rec.RollbackStatus, &rolledBackAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Key = key.String
		rec.Message = message.String
		rec.RiskLevel = models.RiskLevel(riskLevel.String)
		unmarshalNullable(requiredJSON, &rec.RequiredPermissions)
		unmarshalNullable(missingJSON, &rec.MissingPermissions)
		unmarshalNullable(preJSON, &rec.PreChangeState)
		unmarshalNullable(postJSON, &rec.PostChangeState)
		if rolledBackAt.Valid {
			t := rolledBackAt.Time
			rec.RolledBackAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return records, nil
}

// UpdateRollbackStatus mutates the only mutable audit columns. It sets
// rolled_back_at iff the new status is ROLLED_BACK, preserves the message
// when the argument is nil, and bumps the owning run's updated_at. It
// reports whether the row existed.
func (s *RunStore) UpdateRollbackStatus(auditID string, status models.RollbackState, message *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin rollback update: %w", err)
	}
	defer tx.Rollback()

	var runID string
	err = tx.QueryRow(`SELECT run_id FROM execution_audit WHERE audit_id = ?`, auditID).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find audit row: %w", err)
	}

	now := s.now().UTC()
	var rolledBackAt interface{}
	if status == models.RollbackRolledBack {
		rolledBackAt = now
	}

	if _, err := tx.Exec(`UPDATE execution_audit
		SET rollback_status = ?,
			rolled_back_at = CASE WHEN ? THEN ? ELSE rolled_back_at END,
			message = COALESCE(?, message)
		WHERE audit_id = ?`,
		status, status == models.RollbackRolledBack, rolledBackAt, message, auditID); err != nil {
		return false, fmt.Errorf("update audit row: %w", err)
	}

	if _, err := tx.Exec(`UPDATE runs SET updated_at = ? WHERE run_id = ?`, now, runID); err != nil {
		return false, fmt.Errorf("bump run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rollback update: %w", err)
	}

	if run, ok := s.runs[runID]; ok {
		updated := *run
		updated.UpdatedAt = now
		s.runs[runID] = &updated
	}
	return true, nil
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable values, which the models
		// never contain.
		panic(err)
	}
	return string(data)
}

func cloneRun(run *models.Run) *models.Run {
	data := mustJSON(run)
	var out models.Run
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		panic(err)
	}
	return &out
}
