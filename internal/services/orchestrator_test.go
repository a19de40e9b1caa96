package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/finauto/ports"
	"github.com/soochol/finauto/internal/notify"
	"github.com/soochol/finauto/internal/repository"
)

var sweepAt = time.Date(2024, 5, 1, 9, 0, 30, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// recordingExecutor records the order actions are executed in.
type recordingExecutor struct {
	inner ports.ActionExecutor
	mu    sync.Mutex
	calls []string
}

func (r *recordingExecutor) Execute(ctx context.Context, ac finauto.ActionContext, a *finauto.Action) finauto.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, a.ID)
	r.mu.Unlock()
	return r.inner.Execute(ctx, ac, a)
}

// flakyStore wraps an automation store and can fail or panic on writes.
type flakyStore struct {
	ports.AutomationStore
	mu          sync.Mutex
	writes      int
	updateErr   error
	updatePanic bool
	listErr     error
}

func (s *flakyStore) UpdateState(ctx context.Context, id string, u finauto.StateUpdate) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	if s.updatePanic {
		panic("store exploded")
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.AutomationStore.UpdateState(ctx, id, u)
}

func (s *flakyStore) ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.AutomationStore.ListDue(ctx, now)
}

type failingActions struct{}

func (failingActions) ListByAutomation(context.Context, string) ([]*finauto.Action, error) {
	return nil, errors.New("actions table unavailable")
}

type harness struct {
	automations *repository.MemoryAutomationRepository
	store       *flakyStore
	actions     *repository.MemoryActionRepository
	runs        *repository.MemoryRunRepository
	notes       *repository.MemoryNotificationRepository
	mailer      *fakeMailer
	exec        *recordingExecutor
	orch        *Orchestrator
}

func newHarness(t *testing.T, mailer notify.Mailer) *harness {
	t.Helper()
	h := &harness{
		automations: repository.NewMemoryAutomationRepository(),
		actions:     repository.NewMemoryActionRepository(),
		runs:        repository.NewMemoryRunRepository(),
		notes:       repository.NewMemoryNotificationRepository(),
	}
	if fm, ok := mailer.(*fakeMailer); ok {
		h.mailer = fm
	}
	h.store = &flakyStore{AutomationStore: h.automations}
	h.exec = &recordingExecutor{inner: NewDispatcher(mailer, h.notes)}
	history := NewRunHistoryService(h.runs)
	history.now = func() time.Time { return sweepAt }
	h.orch = NewOrchestrator(h.store, h.actions, history, h.exec, nil, OrchestratorConfig{MaxParallel: 2})
	h.orch.now = func() time.Time { return sweepAt }
	return h
}

func (h *harness) addAutomation(t *testing.T, a *finauto.Automation, kinds ...finauto.ActionKind) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.automations.Create(ctx, a))
	for i, k := range kinds {
		require.NoError(t, h.actions.Create(ctx, &finauto.Action{
			ID:           a.ID + "-act-" + string(rune('a'+i)),
			AutomationID: a.ID,
			SortOrder:    i,
			Kind:         k,
		}))
	}
}

func (h *harness) runsOf(t *testing.T, id string) []*finauto.Run {
	t.Helper()
	runs, _, err := h.runs.ListByAutomation(context.Background(), id, 100, 0)
	require.NoError(t, err)
	return runs
}

func (h *harness) get(t *testing.T, id string) *finauto.Automation {
	t.Helper()
	a, err := h.automations.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func tptr(t time.Time) *time.Time { return &t }

func dailyAutomation(id string, d finauto.DurationPolicy, runs int) *finauto.Automation {
	return &finauto.Automation{
		ID:       id,
		UserID:   "user-1",
		Name:     "Daily " + id,
		IsActive: true,
		Trigger: finauto.ScheduleTrigger{
			Spec: finauto.ScheduleSpec{
				Frequency: finauto.FrequencyDaily,
				Time:      finauto.TimeOfDay{Hour: 9},
				Timezone:  "UTC",
				Duration:  d,
			},
			State: finauto.ScheduleState{RunsCompleted: runs},
		},
		NextRunAt: tptr(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func notification(title string) finauto.NotificationAction {
	return finauto.NotificationAction{Title: title, Message: "m"}
}

func TestProcess_CountLimitRetiresAfterFinalRun(t *testing.T) {
	tests := []struct {
		name     string
		runCount int
		done     int
	}{
		{name: "single run", runCount: 1, done: 0},
		{name: "third of three", runCount: 3, done: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeMailer{})
			h.addAutomation(t, dailyAutomation("a", finauto.CountLimit{RunCount: tt.runCount}, tt.done), notification("hi"))

			sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
			require.NoError(t, err)
			assert.Equal(t, finauto.Summary{Processed: 1, Failed: 0, Total: 1}, sum)

			a := h.get(t, "a")
			st, _ := a.Schedule()
			assert.Equal(t, tt.runCount, st.State.RunsCompleted)
			assert.False(t, a.IsActive)
			assert.Nil(t, a.NextRunAt)
			require.NotNil(t, a.LastRunAt)
			assert.Equal(t, sweepAt, *a.LastRunAt)

			runs := h.runsOf(t, "a")
			require.Len(t, runs, 1)
			assert.Equal(t, finauto.RunStatusSuccess, runs[0].Status)
			assert.Nil(t, runs[0].Error)
			assert.NotNil(t, runs[0].CompletedAt)
		})
	}
}

func TestProcess_ForeverAdvancesNextRun(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 10), notification("hi"))

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	a := h.get(t, "a")
	assert.True(t, a.IsActive)
	require.NotNil(t, a.NextRunAt)
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), *a.NextRunAt)
	st, _ := a.Schedule()
	assert.Equal(t, 11, st.State.RunsCompleted)
}

func TestProcess_BatchWithUnconfiguredMailer(t *testing.T) {
	h := newHarness(t, notify.NewSMTPMailer(notify.SMTPConfig{}))
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("ok"))
	h.addAutomation(t, dailyAutomation("b", finauto.Forever{}, 0), finauto.EmailAction{To: "cfo@example.com", Subject: "s", Body: "b"})

	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Processed: 2, Failed: 0, Total: 2}, sum)

	runsA := h.runsOf(t, "a")
	require.Len(t, runsA, 1)
	assert.Equal(t, finauto.RunStatusSuccess, runsA[0].Status)

	runsB := h.runsOf(t, "b")
	require.Len(t, runsB, 1)
	assert.Equal(t, finauto.RunStatusFailed, runsB[0].Status)
	require.NotNil(t, runsB[0].Error)
	assert.Contains(t, *runsB[0].Error, notify.ErrNotConfigured.Error())
}

func TestProcess_PartialFailureRunsEveryActionInOrder(t *testing.T) {
	h := newHarness(t, &fakeMailer{err: errors.New("relay refused")})
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0),
		finauto.EmailAction{To: "cfo@example.com", Subject: "s", Body: "b"},
		notification("after the email"),
	)

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	assert.Equal(t, []string{"a-act-a", "a-act-b"}, h.exec.calls)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "relay refused")

	notes, err := h.notes.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, runs[0].ID, notes[0].RunID)
}

func TestProcess_FirstFailureIsTheRunError(t *testing.T) {
	h := newHarness(t, &fakeMailer{err: errors.New("first")})
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0),
		finauto.EmailAction{To: "x@example.com", Subject: "s", Body: "b"},
		finauto.EmailAction{To: "", Subject: "s", Body: "b"},
	)

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "first")
	assert.NotContains(t, *runs[0].Error, "no recipients")
}

func TestProcess_RunClosedWhenAdvanceFails(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.store.updateErr = errors.New("connection reset")
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.RunStatusFailed, runs[0].Status)
	assert.NotNil(t, runs[0].CompletedAt)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "schedule advance")
	assert.Contains(t, *runs[0].Error, "connection reset")
}

func TestProcess_RunClosedWhenAdvancePanics(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.store.updatePanic = true
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Status.Terminal())
	assert.Equal(t, finauto.RunStatusFailed, runs[0].Status)
	assert.NotNil(t, runs[0].CompletedAt)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "panic")
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, finauto.ActionContext, *finauto.Action) finauto.Outcome {
	panic("dispatcher bug")
}

func TestProcess_PanickingActionStillAdvances(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.orch.executor = panickingExecutor{}
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("1"), notification("2"))

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "dispatcher bug")

	st, _ := h.get(t, "a").Schedule()
	assert.Equal(t, 1, st.State.RunsCompleted)
}

func TestProcess_ManualIgnoresActiveFlag(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	a := &finauto.Automation{ID: "m", UserID: "user-1", Name: "Paused", IsActive: false, Trigger: finauto.ManualTrigger{}}
	h.addAutomation(t, a, notification("hi"))

	sum, err := h.orch.Process(context.Background(), finauto.Manual("m"))
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Processed: 1, Total: 1}, sum)

	runs := h.runsOf(t, "m")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.ModeManual, runs[0].Mode)
	assert.Equal(t, finauto.RunStatusSuccess, runs[0].Status)

	got := h.get(t, "m")
	assert.False(t, got.IsActive)
	assert.Nil(t, got.NextRunAt)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, sweepAt, *got.LastRunAt)
}

func TestProcess_ManualNotFound(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.addAutomation(t, &finauto.Automation{ID: "gone", UserID: "user-1", Trigger: finauto.ManualTrigger{}})
	require.NoError(t, h.automations.Delete(context.Background(), "gone", sweepAt))

	for _, id := range []string{"gone", "never-existed"} {
		sum, err := h.orch.Process(context.Background(), finauto.Manual(id))
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Processed)
		assert.Equal(t, "automation not found", sum.Message)
	}
	assert.Empty(t, h.runsOf(t, "gone"))
}

func TestProcess_UntilInPastIsSkippedAndDeactivated(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	past := finauto.UntilDate{RunUntil: finauto.Date{Year: 2024, Month: time.April, Day: 30}}
	h.addAutomation(t, dailyAutomation("a", past, 0), notification("hi"))

	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Total: 1}, sum)
	assert.Empty(t, h.runsOf(t, "a"))
	assert.Empty(t, h.exec.calls)

	a := h.get(t, "a")
	assert.False(t, a.IsActive)
	assert.Nil(t, a.NextRunAt)
	assert.Equal(t, 1, h.store.writes)

	sum, err = h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, "no automations due", sum.Message)
	assert.Equal(t, 1, h.store.writes)
}

func TestProcess_DeactivationIsIdempotent(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	a := dailyAutomation("a", finauto.CountLimit{RunCount: 2}, 2)
	a.IsActive = false
	a.NextRunAt = nil
	h.addAutomation(t, a, notification("hi"))

	for i := 0; i < 2; i++ {
		sum, err := h.orch.Process(context.Background(), finauto.Manual("a"))
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Processed)
	}
	assert.Empty(t, h.runsOf(t, "a"))
	assert.Equal(t, 0, h.store.writes)
}

func TestProcess_FailedActionsAreNotRedelivered(t *testing.T) {
	h := newHarness(t, &fakeMailer{err: errors.New("relay down")})
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), finauto.EmailAction{To: "x@example.com", Subject: "s", Body: "b"})

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	a := h.get(t, "a")
	require.NotNil(t, a.NextRunAt)
	assert.True(t, a.NextRunAt.After(sweepAt))

	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, "no automations due", sum.Message)
	assert.Len(t, h.runsOf(t, "a"), 1)
}

func TestProcess_ListDueFailureAbortsInvocation(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.store.listErr = errors.New("db down")
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Empty(t, h.runsOf(t, "a"))
}

func TestProcess_ActionLoadFailureCountsAsFailed(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.orch.actions = failingActions{}
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0))

	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Processed: 0, Failed: 1, Total: 1}, sum)
	assert.Empty(t, h.runsOf(t, "a"))
}

func TestProcess_SkipsAutomationAlreadyLeased(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	leases := NewAutomationLimiter()
	h.orch.leases = leases
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	require.True(t, leases.TryAcquire("a"))
	sum, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Total: 1}, sum)
	assert.Empty(t, h.runsOf(t, "a"))

	leases.Release("a")
	sum, err = h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, leases.Active())
}

type blockingExecutor struct{}

func (blockingExecutor) Execute(ctx context.Context, _ finauto.ActionContext, _ *finauto.Action) finauto.Outcome {
	<-ctx.Done()
	return finauto.Failed(ctx.Err().Error())
}

func TestProcess_ActionTimeoutIsAFailedOutcome(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.orch.executor = blockingExecutor{}
	h.orch.cfg.ActionTimeout = 20 * time.Millisecond
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	_, err := h.orch.Process(context.Background(), finauto.Scheduled())
	require.NoError(t, err)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "deadline exceeded")
}

func TestProcess_CancelledInvocationStillClosesRun(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.addAutomation(t, dailyAutomation("a", finauto.Forever{}, 0), notification("hi"))

	ctx, cancel := context.WithCancel(context.Background())
	h.orch.executor = &cancelOnExecute{cancel: cancel, inner: h.exec}

	_, err := h.orch.Process(ctx, finauto.Scheduled())
	require.NoError(t, err)

	runs := h.runsOf(t, "a")
	require.Len(t, runs, 1)
	assert.Equal(t, finauto.RunStatusSuccess, runs[0].Status)
}

type cancelOnExecute struct {
	cancel context.CancelFunc
	inner  ports.ActionExecutor
}

func (c *cancelOnExecute) Execute(ctx context.Context, ac finauto.ActionContext, a *finauto.Action) finauto.Outcome {
	c.cancel()
	return c.inner.Execute(ctx, ac, a)
}

// racingStore runs interleave after taking the ListDue snapshot, standing in
// for another invocation that finishes before the sweep gets a slot.
type racingStore struct {
	ports.AutomationStore
	interleave func()
}

func (s *racingStore) ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error) {
	due, err := s.AutomationStore.ListDue(ctx, now)
	if err == nil && s.interleave != nil {
		s.interleave()
	}
	return due, err
}

func TestProcess_SweepUsesStateWrittenAfterSelection(t *testing.T) {
	tests := []struct {
		name       string
		duration   finauto.DurationPolicy
		wantActive bool
	}{
		{name: "count limit of one", duration: finauto.CountLimit{RunCount: 1}, wantActive: false},
		{name: "forever", duration: finauto.Forever{}, wantActive: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeMailer{})
			h.addAutomation(t, dailyAutomation("a1", tt.duration, 0), notification("month end"))

			ctx := context.Background()
			store := &racingStore{AutomationStore: h.store}
			store.interleave = func() {
				sum, err := h.orch.Process(ctx, finauto.Manual("a1"))
				require.NoError(t, err)
				require.Equal(t, 1, sum.Processed)
			}
			h.orch.automations = store

			sum, err := h.orch.Process(ctx, finauto.Scheduled())
			require.NoError(t, err)
			assert.Equal(t, finauto.Summary{Total: 1}, sum)

			assert.Len(t, h.runsOf(t, "a1"), 1)
			notes, err := h.notes.ListByUser(ctx, "user-1", 100)
			require.NoError(t, err)
			assert.Len(t, notes, 1)

			a := h.get(t, "a1")
			st, _ := a.Schedule()
			assert.Equal(t, 1, st.State.RunsCompleted)
			assert.Equal(t, tt.wantActive, a.IsActive)
		})
	}
}

func TestProcess_SelectedAutomationDeletedBeforeItsTurn(t *testing.T) {
	h := newHarness(t, &fakeMailer{})
	h.addAutomation(t, dailyAutomation("a1", finauto.Forever{}, 0), notification("hi"))

	ctx := context.Background()
	h.orch.automations = &racingStore{AutomationStore: h.store, interleave: func() {
		require.NoError(t, h.automations.Delete(ctx, "a1", sweepAt))
	}}

	sum, err := h.orch.Process(ctx, finauto.Scheduled())
	require.NoError(t, err)
	assert.Equal(t, finauto.Summary{Total: 1}, sum)
	assert.Empty(t, h.runsOf(t, "a1"))
}
