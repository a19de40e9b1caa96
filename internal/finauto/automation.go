package finauto

import "time"

// TriggerType is the stored discriminant of an automation trigger.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
)

// Trigger decides when an automation fires.
// Implementations: ManualTrigger, ScheduleTrigger.
type Trigger interface {
	trigger()
	Type() TriggerType
}

// ManualTrigger fires only when a user asks for it.
type ManualTrigger struct{}

// ScheduleTrigger fires on a calendar recurrence.
type ScheduleTrigger struct {
	Spec  ScheduleSpec
	State ScheduleState
}

func (ManualTrigger) trigger()   {}
func (ScheduleTrigger) trigger() {}

func (ManualTrigger) Type() TriggerType   { return TriggerManual }
func (ScheduleTrigger) Type() TriggerType { return TriggerSchedule }

// Automation is a user-defined list of actions with a trigger.
type Automation struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	Trigger     Trigger    `json:"-"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Schedule returns the schedule trigger, if the automation has one.
func (a *Automation) Schedule() (ScheduleTrigger, bool) {
	st, ok := a.Trigger.(ScheduleTrigger)
	return st, ok
}

// Deleted reports whether the automation has been soft-deleted.
func (a *Automation) Deleted() bool { return a.DeletedAt != nil }

// IsDue reports whether a scheduled sweep at now should pick up a.
func (a *Automation) IsDue(now time.Time) bool {
	return a.IsActive && !a.Deleted() && a.NextRunAt != nil && !a.NextRunAt.After(now)
}

// Clone returns a copy that shares no mutable state with a.
func (a *Automation) Clone() *Automation {
	c := *a
	if a.LastRunAt != nil {
		t := *a.LastRunAt
		c.LastRunAt = &t
	}
	if a.NextRunAt != nil {
		t := *a.NextRunAt
		c.NextRunAt = &t
	}
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	if st, ok := a.Trigger.(ScheduleTrigger); ok {
		st.Spec.Months = append([]int(nil), st.Spec.Months...)
		c.Trigger = st
	}
	return &c
}

// StateUpdate carries the engine-owned automation fields written after a
// run or a retirement.
type StateUpdate struct {
	IsActive  bool
	NextRunAt *time.Time
	LastRunAt *time.Time
	// Schedule is nil for automations without a schedule trigger.
	Schedule *ScheduleState
}

// InvocationMode selects how the orchestrator picks automations.
type InvocationMode string

const (
	ModeScheduled InvocationMode = "scheduled"
	ModeManual    InvocationMode = "manual"
)

// Invocation is one request to the orchestrator.
type Invocation struct {
	Mode         InvocationMode
	AutomationID string
}

// Scheduled returns a sweep over all due automations.
func Scheduled() Invocation { return Invocation{Mode: ModeScheduled} }

// Manual returns a request to run exactly one automation.
func Manual(automationID string) Invocation {
	return Invocation{Mode: ModeManual, AutomationID: automationID}
}
