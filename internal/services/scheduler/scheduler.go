// Package scheduler is the periodic trigger entry point: it invokes the
// orchestrator on a cron timetable and on demand.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/finauto/ports"
)

// DefaultSpec sweeps every 15 minutes.
const DefaultSpec = "0 */15 * * * *"

// SchedulerService runs scheduled-mode sweeps on a cron timetable. Sweeps
// never overlap within one process: a tick that arrives while the previous
// sweep is still running is skipped.
type SchedulerService struct {
	cron      *cron.Cron
	processor ports.Processor
	spec      string
	timezone  string

	mu     sync.Mutex
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSchedulerService creates a scheduler for processor. An empty spec
// uses DefaultSpec.
func NewSchedulerService(processor ports.Processor, spec, timezone string) *SchedulerService {
	if spec == "" {
		spec = DefaultSpec
	}
	logger := cronLogger{}
	return &SchedulerService{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		processor: processor,
		spec:      spec,
		timezone:  timezone,
	}
}

// Start registers the sweep job and begins the cron loop.
func (s *SchedulerService) Start(ctx context.Context) error {
	sched, err := parseCronExpr(s.spec, s.timezone)
	if err != nil {
		return fmt.Errorf("scheduler: parse %q: %w", s.spec, err)
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.entry = s.cron.Schedule(sched, cron.FuncJob(func() {
		if _, err := s.Sweep(s.ctx); err != nil {
			slog.Error("scheduler: sweep failed", "err", err)
		}
	}))
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("scheduler: started", "cron", s.spec, "next", s.NextSweep())
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *SchedulerService) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	slog.Info("scheduler: stopped")
}

// NextSweep returns when the next sweep is due, or the zero time when the
// scheduler has not been started.
func (s *SchedulerService) NextSweep() time.Time {
	s.mu.Lock()
	id := s.entry
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Sweep runs one scheduled-mode pass over all due automations.
func (s *SchedulerService) Sweep(ctx context.Context) (finauto.Summary, error) {
	start := time.Now()
	sum, err := s.processor.Process(ctx, finauto.Scheduled())
	if err != nil {
		return sum, err
	}
	slog.Info("scheduler: sweep finished",
		"processed", sum.Processed, "failed", sum.Failed, "total", sum.Total,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return sum, nil
}

// TriggerNow processes one automation immediately in manual mode,
// regardless of its active flag and next run time.
func (s *SchedulerService) TriggerNow(ctx context.Context, automationID string) (finauto.Summary, error) {
	return s.processor.Process(ctx, finauto.Manual(automationID))
}
