package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/finauto/ports"
	"github.com/soochol/finauto/internal/repository"
)

var _ ports.RunHistoryPort = (*RunHistoryService)(nil)

// OrphanedRunError is the error recorded on runs a previous process left open.
const OrphanedRunError = "interrupted: process restarted"

// RunHistoryService manages automation run records.
type RunHistoryService struct {
	runRepo repository.RunRepository
	now     func() time.Time
}

// NewRunHistoryService creates a RunHistoryService.
func NewRunHistoryService(runRepo repository.RunRepository) *RunHistoryService {
	return &RunHistoryService{runRepo: runRepo, now: time.Now}
}

// StartRun creates a new run in running state.
func (s *RunHistoryService) StartRun(ctx context.Context, automationID string, mode finauto.InvocationMode) (*finauto.Run, error) {
	run := &finauto.Run{
		ID:           finauto.GenerateID("run"),
		AutomationID: automationID,
		Mode:         mode,
		Status:       finauto.RunStatusRunning,
		StartedAt:    s.now().UTC(),
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun marks a run as successful.
func (s *RunHistoryService) CompleteRun(ctx context.Context, id string) error {
	return s.close(ctx, id, finauto.RunStatusSuccess, nil)
}

// FailRun marks a run as failed with an error message.
func (s *RunHistoryService) FailRun(ctx context.Context, id string, errMsg string) error {
	return s.close(ctx, id, finauto.RunStatusFailed, &errMsg)
}

func (s *RunHistoryService) close(ctx context.Context, id string, status finauto.RunStatus, errMsg *string) error {
	run, err := s.runRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = &now
	return s.runRepo.Update(ctx, run)
}

// GetRun retrieves a single run record.
func (s *RunHistoryService) GetRun(ctx context.Context, id string) (*finauto.Run, error) {
	return s.runRepo.Get(ctx, id)
}

// ListRuns returns one automation's runs, newest first.
func (s *RunHistoryService) ListRuns(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error) {
	return s.runRepo.ListByAutomation(ctx, automationID, limit, offset)
}

// CleanupOrphanedRuns marks every run still in running state as failed.
// Call once at startup, before the first sweep.
func (s *RunHistoryService) CleanupOrphanedRuns(ctx context.Context) {
	n, err := s.runRepo.MarkOrphanedRunsFailed(ctx, OrphanedRunError, s.now().UTC())
	if err != nil {
		slog.Warn("runhistory: failed to clean up orphaned runs", "err", err)
		return
	}
	if n > 0 {
		slog.Info("runhistory: marked orphaned runs as failed", "count", n)
	}
}
