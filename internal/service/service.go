// Package service glues the pipeline stages together: it owns the run
// lifecycle, threads every stage through the run store and raises typed
// errors for the API boundary to map onto status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/costmgr/costmgr/internal/executor"
	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/metrics"
	"github.com/costmgr/costmgr/internal/models"
	"github.com/costmgr/costmgr/internal/scanner"
	"github.com/costmgr/costmgr/internal/scoring"
	"github.com/costmgr/costmgr/internal/store"
)

// Typed contract errors. The HTTP layer maps these onto 404/409.
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunNotScored   = errors.New("run has not been scored")
	ErrNoExecution    = errors.New("run has no execution")
	ErrNoAuditRecords = errors.New("no audit records match the filter")
)

// Service drives the scan, score, execute and rollback stages.
type Service struct {
	scanner  *scanner.Scanner
	scorer   *scoring.Scorer
	executor *executor.Executor
	rollback *executor.RollbackManager
	runs     *store.RunStore
	metrics  *metrics.Metrics
	log      logger.Logger
}

// New wires the pipeline stages together.
func New(sc *scanner.Scanner, scorer *scoring.Scorer, exec *executor.Executor, rb *executor.RollbackManager, runs *store.RunStore, m *metrics.Metrics) *Service {
	return &Service{
		scanner:  sc,
		scorer:   scorer,
		executor: exec,
		rollback: rb,
		runs:     runs,
		metrics:  m,
		log:      logger.New("service"),
	}
}

// Scan performs a scan pass and creates a new run from its findings.
func (s *Service) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResponse, error) {
	started := time.Now()
	result, err := s.scanner.Scan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	run, err := s.runs.CreateRun(result.Recommendations, result.Stats)
	if err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	var totalSavings float64
	for _, rec := range run.Recommendations {
		totalSavings += rec.EstimatedMonthlySavings
		s.metrics.RecommendationsTotal.WithLabelValues(string(rec.Type)).Inc()
	}
	s.metrics.ScansTotal.Inc()
	s.metrics.ScanErrorsTotal.Add(float64(len(result.Stats.Errors)))
	s.metrics.ScanDuration.Observe(time.Since(started).Seconds())
	s.metrics.EstimatedMonthlySavings.Set(totalSavings)

	s.log.Info("scan completed",
		logger.String("run_id", run.RunID),
		logger.Int("recommendations", len(run.Recommendations)),
		logger.Int("buckets", run.Stats.BucketsScanned),
		logger.Float64("estimated_monthly_savings", totalSavings))

	return &models.ScanResponse{
		RunID:                   run.RunID,
		Status:                  run.Status,
		Recommendations:         run.Recommendations,
		EstimatedMonthlySavings: totalSavings,
		Stats:                   run.Stats,
		ScannedAt:               run.CreatedAt,
	}, nil
}

// Score scores the run's findings and persists the result. Re-scoring
// overwrites prior scores.
func (s *Service) Score(ctx context.Context, runID string) (*models.ScoreResponse, error) {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	scores, details, summary := s.scorer.Score(run.Recommendations)
	updated, err := s.runs.SetScores(runID, scores, details, summary)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	var safe, approval int
	for _, sc := range scores {
		if sc.SafeToAutomate {
			safe++
		}
		if sc.RequiresApproval {
			approval++
		}
	}

	s.log.Info("run scored",
		logger.String("run_id", runID),
		logger.Int("scores", len(scores)),
		logger.Int("safe_to_automate", safe),
		logger.Int("requires_approval", approval))

	return &models.ScoreResponse{
		RunID:            runID,
		Status:           updated.Status,
		Scores:           scores,
		SavingsDetails:   details,
		SavingsSummary:   summary,
		SafeToAutomate:   safe,
		RequiresApproval: approval,
		ScoredAt:         updated.UpdatedAt,
	}, nil
}

// Execute runs an execution batch against a scored run. A run whose
// scores are empty is treated as not scored.
func (s *Service) Execute(ctx context.Context, req models.ExecuteRequest) (*models.ExecuteResponse, error) {
	run, err := s.runs.GetRun(req.RunID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	if len(run.Scores) == 0 {
		return nil, ErrRunNotScored
	}

	started := time.Now()
	resp, err := s.executor.Execute(ctx, req, run.Recommendations, run.Scores)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	if _, err := s.runs.SetExecution(req.RunID, resp); err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.metrics.ExecutionsTotal.WithLabelValues(string(resp.Mode)).Inc()
	for _, action := range resp.ActionResults {
		s.metrics.ActionsTotal.WithLabelValues(string(action.Status)).Inc()
	}
	s.metrics.ExecuteDuration.Observe(time.Since(started).Seconds())

	return resp, nil
}

// Rollback undoes executed actions of one execution batch and writes the
// outcome back onto the audit rows.
func (s *Service) Rollback(ctx context.Context, req models.RollbackRequest) (*models.RollbackResponse, error) {
	run, err := s.runs.GetRun(req.RunID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	executionID := req.ExecutionID
	if executionID == "" {
		if run.Execution == nil {
			return nil, ErrNoExecution
		}
		executionID = run.Execution.ExecutionID
	}

	records, err := s.runs.ListExecutionAudit(req.RunID, executionID, req.AuditIDs)
	if err != nil {
		return nil, fmt.Errorf("load audit records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoAuditRecords
	}

	resp, err := s.rollback.Rollback(ctx, req, records, executionID)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	for _, result := range resp.Results {
		s.metrics.RollbacksTotal.WithLabelValues(string(result.Status)).Inc()
		switch result.Status {
		case models.RollbackActionRolledBack:
			s.writeRollbackStatus(result.AuditID, models.RollbackRolledBack, result.Message)
		case models.RollbackActionFailed:
			s.writeRollbackStatus(result.AuditID, models.RollbackFailed, result.Message)
		}
	}

	return resp, nil
}

func (s *Service) writeRollbackStatus(auditID string, status models.RollbackState, message string) {
	ok, err := s.runs.UpdateRollbackStatus(auditID, status, &message)
	if err != nil {
		s.log.Error("rollback status write failed",
			logger.String("audit_id", auditID),
			logger.Error(err))
		return
	}
	if !ok {
		s.log.Warn("rollback status write hit missing audit row",
			logger.String("audit_id", auditID))
	}
}

// GetRun returns the full run record including its audit rows.
func (s *Service) GetRun(runID string) (*models.Run, []models.AuditRecord, error) {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, nil, s.mapStoreErr(err)
	}
	audit, err := s.runs.ListExecutionAudit(runID, "", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load audit records: %w", err)
	}
	return run, audit, nil
}

// ListRuns returns summaries of all runs, newest activity first.
func (s *Service) ListRuns() []models.RunSummary {
	return s.runs.ListRuns()
}

// GetAudit returns audit rows for a run, optionally narrowed to one
// execution batch.
func (s *Service) GetAudit(runID, executionID string) ([]models.AuditRecord, error) {
	if _, err := s.runs.GetRun(runID); err != nil {
		return nil, s.mapStoreErr(err)
	}
	return s.runs.ListExecutionAudit(runID, executionID, nil)
}

func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrRunNotFound
	}
	return err
}
