// Package schedule computes fire instants and retirement for schedule
// triggers. It is pure: no I/O, and "now" is always passed in.
package schedule

import (
	"log/slog"
	"sort"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// ResolveLocation loads an IANA zone, falling back to UTC when name is empty
// or unknown to the runtime's zone database.
func ResolveLocation(name string) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Debug("schedule: unknown timezone, using UTC", "timezone", name, "err", err)
		return time.UTC
	}
	return loc
}

// daysIn returns the number of days in month m of year y.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampDay limits day to the length of month m of year y.
func clampDay(day, y int, m time.Month) int {
	if day < 1 {
		return 1
	}
	if n := daysIn(y, m); day > n {
		return n
	}
	return day
}

// Next returns the first fire instant of spec strictly after the schedule
// slot that now falls in, expressed in UTC.
//
// A local time equal to the scheduled time counts as already passed, so
// calling Next with a fire instant yields the following one.
func Next(spec finauto.ScheduleSpec, now time.Time) time.Time {
	loc := ResolveLocation(spec.Timezone)
	local := now.In(loc)
	y, m, d := local.Date()
	passed := local.Hour()*60+local.Minute() >= spec.Time.Minutes()

	var ty int
	var tm time.Month
	var td int

	switch spec.Frequency {
	case finauto.FrequencyWeekly:
		until := (int(spec.EffectiveDayOfWeek()) - int(local.Weekday()) + 7) % 7
		if until == 0 && passed {
			until = 7
		}
		ty, tm, td = y, m, d+until

	case finauto.FrequencyMonthly:
		ty, tm = y, m
		td = clampDay(spec.EffectiveDayOfMonth(), ty, tm)
		if d > td || (d == td && passed) {
			ty, tm = addMonth(ty, tm)
			td = clampDay(spec.EffectiveDayOfMonth(), ty, tm)
		}

	case finauto.FrequencyQuarterly:
		ty, tm, td = nextQuarter(spec, y, m, d, passed)

	case finauto.FrequencyYearly:
		ty, tm = y, spec.EffectiveMonth()
		td = clampDay(spec.EffectiveDayOfMonth(), ty, tm)
		if m > tm || (m == tm && (d > td || (d == td && passed))) {
			ty++
			td = clampDay(spec.EffectiveDayOfMonth(), ty, tm)
		}

	default: // daily, and anything unrecognised
		ty, tm, td = y, m, d
		if passed {
			td++
		}
	}

	next := toInstant(ty, tm, td, spec.Time, loc)
	if !next.After(now) {
		// Only reachable inside a repeated DST hour: the first occurrence of
		// the wall time is already behind us, so move to the next cycle.
		return Next(spec, next)
	}
	return next
}

// toInstant maps a local wall time to UTC. time.Date normalises day overflow
// (Jan 35 -> Feb 4) on the civil calendar and uses the offset in effect on
// the target date. A wall time that falls in a DST gap does not exist; it is
// shifted forward past the gap.
func toInstant(y int, m time.Month, d int, at finauto.TimeOfDay, loc *time.Location) time.Time {
	t := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	want := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, time.UTC)
	got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if gap := want.Sub(got); gap > 0 {
		t = t.Add(gap)
	}
	return t.UTC()
}

func addMonth(y int, m time.Month) (int, time.Month) {
	if m == time.December {
		return y + 1, time.January
	}
	return y, m + 1
}

func nextQuarter(spec finauto.ScheduleSpec, y int, m time.Month, d int, passed bool) (int, time.Month, int) {
	months := spec.EffectiveMonths()
	sort.Ints(months)
	dom := spec.EffectiveDayOfMonth()

	for _, qm := range months {
		mm := time.Month(qm)
		if mm > m {
			return y, mm, clampDay(dom, y, mm)
		}
		if mm == m {
			td := clampDay(dom, y, mm)
			if d < td || (d == td && !passed) {
				return y, mm, td
			}
		}
	}
	first := time.Month(months[0])
	return y + 1, first, clampDay(dom, y+1, first)
}

// Upcoming returns the next n fire instants after now.
func Upcoming(spec finauto.ScheduleSpec, now time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	at := now
	for i := 0; i < n; i++ {
		at = Next(spec, at)
		out = append(out, at)
	}
	return out
}
