package schedule

import (
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// Expired reports whether a schedule has used up its duration policy.
// UntilDate compares now with local midnight of the end date in the
// schedule's timezone.
func Expired(spec finauto.ScheduleSpec, state finauto.ScheduleState, now time.Time) bool {
	switch d := spec.EffectiveDuration().(type) {
	case finauto.CountLimit:
		return state.RunsCompleted >= d.RunCount
	case finauto.UntilDate:
		return !now.Before(d.RunUntil.StartIn(ResolveLocation(spec.Timezone)))
	default:
		return false
	}
}

// Advance applies one completed run to st and returns the resulting state,
// whether the schedule should be retired, and the next fire instant (nil
// when retired).
func Advance(st finauto.ScheduleTrigger, now time.Time) (finauto.ScheduleState, bool, *time.Time) {
	state := st.State
	state.RunsCompleted++
	if Expired(st.Spec, state, now) {
		return state, true, nil
	}
	next := Next(st.Spec, now)
	return state, false, &next
}
