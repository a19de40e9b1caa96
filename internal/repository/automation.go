package repository

import (
	"context"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// AutomationRepository abstracts persistence for automations.
//
// Get and ListDue never return soft-deleted automations. Returned values are
// owned by the caller; mutating them does not change stored state.
type AutomationRepository interface {
	Create(ctx context.Context, a *finauto.Automation) error
	Get(ctx context.Context, id string) (*finauto.Automation, error)
	ListByUser(ctx context.Context, userID string) ([]*finauto.Automation, error)
	// ListDue returns active automations whose next_run_at is at or before
	// now, ordered by next_run_at.
	ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error)
	// UpdateState writes the engine-owned fields in a single write.
	UpdateState(ctx context.Context, id string, u finauto.StateUpdate) error
	Delete(ctx context.Context, id string, at time.Time) error
}

// applyState copies u onto a. A nil LastRunAt in u keeps the stored value.
func applyState(a *finauto.Automation, u finauto.StateUpdate, at time.Time) {
	a.IsActive = u.IsActive
	a.NextRunAt = u.NextRunAt
	if u.LastRunAt != nil {
		a.LastRunAt = u.LastRunAt
	}
	if u.Schedule != nil {
		if st, ok := a.Schedule(); ok {
			st.State = *u.Schedule
			a.Trigger = st
		}
	}
	a.UpdatedAt = at
}
