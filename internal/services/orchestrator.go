package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/finauto/ports"
	"github.com/soochol/finauto/internal/repository"
	"github.com/soochol/finauto/internal/schedule"
)

var _ ports.Processor = (*Orchestrator)(nil)

const (
	defaultMaxParallel   = 4
	defaultActionTimeout = 30 * time.Second
	storeWriteTimeout    = 15 * time.Second
)

// OrchestratorConfig bounds one invocation's resource use.
type OrchestratorConfig struct {
	MaxParallel   int
	ActionTimeout time.Duration
}

// Orchestrator selects automations, runs their actions in order, advances
// their schedules and records every run.
type Orchestrator struct {
	automations ports.AutomationStore
	actions     ports.ActionSource
	runs        ports.RunHistoryPort
	executor    ports.ActionExecutor
	leases      ports.ConcurrencyControl
	cfg         OrchestratorConfig
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator. A nil leases uses a fresh
// AutomationLimiter.
func NewOrchestrator(
	automations ports.AutomationStore,
	actions ports.ActionSource,
	runs ports.RunHistoryPort,
	executor ports.ActionExecutor,
	leases ports.ConcurrencyControl,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if leases == nil {
		leases = NewAutomationLimiter()
	}
	return &Orchestrator{
		automations: automations,
		actions:     actions,
		runs:        runs,
		executor:    executor,
		leases:      leases,
		cfg:         cfg,
		now:         time.Now,
	}
}

type automationResult int

const (
	resultSkipped automationResult = iota
	resultProcessed
	resultFailed
)

// Process handles one invocation. It returns an error only when the
// automations to process could not be loaded at all; everything that goes
// wrong inside a single automation is recorded on its run.
func (o *Orchestrator) Process(ctx context.Context, inv finauto.Invocation) (finauto.Summary, error) {
	targets, err := o.selectTargets(ctx, inv)
	if err != nil {
		return finauto.Summary{}, err
	}
	if len(targets) == 0 {
		msg := "no automations due"
		if inv.Mode == finauto.ModeManual {
			msg = "automation not found"
		}
		return finauto.Summary{Message: msg}, nil
	}

	results := make([]automationResult, len(targets))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)
	for i, a := range targets {
		g.Go(func() error {
			results[i] = o.processAutomation(ctx, a, inv.Mode)
			return nil
		})
	}
	_ = g.Wait() // per-automation failures are recorded in results

	sum := finauto.Summary{Total: len(targets)}
	for _, r := range results {
		switch r {
		case resultProcessed:
			sum.Processed++
		case resultFailed:
			sum.Failed++
		}
	}
	slog.Info("orchestrator: invocation finished",
		"mode", inv.Mode, "processed", sum.Processed, "failed", sum.Failed, "total", sum.Total)
	return sum, nil
}

func (o *Orchestrator) selectTargets(ctx context.Context, inv finauto.Invocation) ([]*finauto.Automation, error) {
	if inv.Mode == finauto.ModeManual {
		a, err := o.automations.Get(ctx, inv.AutomationID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load automation %s: %w", inv.AutomationID, err)
		}
		return []*finauto.Automation{a}, nil
	}

	due, err := o.automations.ListDue(ctx, o.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("load due automations: %w", err)
	}
	return due, nil
}

func (o *Orchestrator) processAutomation(ctx context.Context, a *finauto.Automation, mode finauto.InvocationMode) automationResult {
	if !o.leases.TryAcquire(a.ID) {
		slog.Info("orchestrator: automation already in progress, skipping", "automation", a.ID)
		return resultSkipped
	}
	defer o.leases.Release(a.ID)

	// The selected record may predate a run that finished while this one
	// waited for a slot; work from the current state.
	now := o.now().UTC()
	fresh, err := o.automations.Get(ctx, a.ID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Info("orchestrator: automation gone, skipping", "automation", a.ID)
		return resultSkipped
	}
	if err != nil {
		slog.Error("orchestrator: reload automation failed", "automation", a.ID, "err", err)
		return resultFailed
	}
	if mode == finauto.ModeScheduled && !fresh.IsDue(now) {
		slog.Info("orchestrator: automation no longer due, skipping", "automation", a.ID)
		return resultSkipped
	}
	a = fresh

	if st, ok := a.Schedule(); ok && schedule.Expired(st.Spec, st.State, now) {
		o.retire(ctx, a)
		return resultSkipped
	}

	actions, err := o.actions.ListByAutomation(ctx, a.ID)
	if err != nil {
		slog.Error("orchestrator: load actions failed", "automation", a.ID, "err", err)
		return resultFailed
	}

	run, err := o.runs.StartRun(ctx, a.ID, mode)
	if err != nil {
		slog.Error("orchestrator: start run failed", "automation", a.ID, "err", err)
		return resultFailed
	}

	// A started run always completes: cancelling the invocation does not
	// abort it.
	o.executeRun(context.WithoutCancel(ctx), a, run, actions, now)
	return resultProcessed
}

// retire deactivates an automation whose duration policy is used up. It
// writes nothing when the automation is already inactive with no next run.
func (o *Orchestrator) retire(ctx context.Context, a *finauto.Automation) {
	if !a.IsActive && a.NextRunAt == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	if err := o.automations.UpdateState(wctx, a.ID, finauto.StateUpdate{IsActive: false}); err != nil {
		slog.Error("orchestrator: deactivate expired automation failed", "automation", a.ID, "err", err)
		return
	}
	slog.Info("orchestrator: expired automation deactivated", "automation", a.ID)
}

// executeRun runs every action, advances the schedule and closes the run.
// The close is deferred so that a panic anywhere in between still leaves
// the run in a terminal state.
func (o *Orchestrator) executeRun(ctx context.Context, a *finauto.Automation, run *finauto.Run, actions []*finauto.Action, now time.Time) {
	var errs []string
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: panic during run", "automation", a.ID, "run", run.ID, "panic", r)
			errs = append(errs, fmt.Sprintf("panic: %v", r))
		}
		o.closeRun(ctx, a, run, errs)
	}()

	ac := finauto.ActionContext{
		AutomationID:   a.ID,
		AutomationName: a.Name,
		UserID:         a.UserID,
		RunID:          run.ID,
		Now:            localNow(a, now),
	}
	failed := false
	for _, act := range actions {
		out := o.runAction(ctx, ac, act)
		if out.OK {
			continue
		}
		slog.Warn("orchestrator: action failed",
			"automation", a.ID, "run", run.ID, "action", act.ID, "type", act.Kind.Type(), "err", out.Error)
		if !failed {
			errs = append(errs, out.Error)
			failed = true
		}
	}

	if err := o.advance(ctx, a, now); err != nil {
		slog.Error("orchestrator: schedule advance failed",
			"alert", "schedule_advance", "automation", a.ID, "run", run.ID, "err", err)
		errs = append(errs, "schedule advance: "+err.Error())
	}
}

// runAction executes one action under the action timeout. A panicking
// executor becomes a failed outcome so later actions still run.
func (o *Orchestrator) runAction(ctx context.Context, ac finauto.ActionContext, act *finauto.Action) (out finauto.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = finauto.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()
	actx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	defer cancel()
	out = o.executor.Execute(actx, ac, act)
	if !out.OK && out.Error == "" {
		out.Error = "action failed"
	}
	return out
}

// advance writes last_run_at and, for schedule triggers, the new run count
// and next fire instant in a single state update.
func (o *Orchestrator) advance(ctx context.Context, a *finauto.Automation, now time.Time) error {
	u := finauto.StateUpdate{
		IsActive:  a.IsActive,
		NextRunAt: a.NextRunAt,
		LastRunAt: &now,
	}
	if st, ok := a.Schedule(); ok {
		state, retired, next := schedule.Advance(st, now)
		u.Schedule = &state
		u.NextRunAt = next
		if retired {
			u.IsActive = false
			slog.Info("orchestrator: schedule finished, deactivating", "automation", a.ID, "runs", state.RunsCompleted)
		}
	}

	wctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()
	return o.automations.UpdateState(wctx, a.ID, u)
}

func (o *Orchestrator) closeRun(ctx context.Context, a *finauto.Automation, run *finauto.Run, errs []string) {
	wctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()

	var err error
	if len(errs) == 0 {
		err = o.runs.CompleteRun(wctx, run.ID)
	} else {
		err = o.runs.FailRun(wctx, run.ID, strings.Join(errs, "; "))
	}
	if err != nil {
		slog.Error("orchestrator: close run failed", "automation", a.ID, "run", run.ID, "err", err)
		return
	}
	slog.Info("orchestrator: run closed", "automation", a.ID, "run", run.ID, "failed", len(errs) > 0)
}

// localNow expresses now in the automation's schedule timezone.
func localNow(a *finauto.Automation, now time.Time) time.Time {
	if st, ok := a.Schedule(); ok {
		return now.In(schedule.ResolveLocation(st.Spec.Timezone))
	}
	return now
}
