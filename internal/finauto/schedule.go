package finauto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is the recurrence unit of a schedule trigger.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// DefaultQuarterMonths is the month set used by quarterly schedules that do
// not configure their own.
var DefaultQuarterMonths = []int{1, 4, 7, 10}

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (seconds, if present, are ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the number of minutes since local midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Date is a calendar date without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "2006-01-02" date. A full RFC 3339 timestamp is also
// accepted; only its date part is kept.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			y, m, d := ts.Date()
			return Date{Year: y, Month: m, Day: d}, nil
		}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d == Date{} }

// StartIn returns local midnight of d in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// DurationPolicy bounds how long a schedule may keep firing.
// Implementations: Forever, CountLimit, UntilDate.
type DurationPolicy interface {
	durationPolicy()
	// Type returns the stored discriminant ("forever", "count", "until").
	Type() string
}

// Forever never retires the schedule.
type Forever struct{}

// CountLimit retires the schedule after RunCount completed runs.
type CountLimit struct {
	RunCount int
}

// UntilDate retires the schedule once RunUntil has started.
type UntilDate struct {
	RunUntil Date
}

func (Forever) durationPolicy()    {}
func (CountLimit) durationPolicy() {}
func (UntilDate) durationPolicy()  {}

func (Forever) Type() string    { return "forever" }
func (CountLimit) Type() string { return "count" }
func (UntilDate) Type() string  { return "until" }

// ScheduleSpec is the user-authored part of a schedule trigger.
// Zero values of the optional fields mean "use the default".
type ScheduleSpec struct {
	Frequency  Frequency
	Time       TimeOfDay
	Timezone   string
	DayOfWeek  int   // 0=Sunday..6=Saturday, weekly only
	DayOfMonth int   // 1..28, monthly/quarterly/yearly
	Months     []int // quarterly only
	Month      int   // 1..12, yearly only
	Duration   DurationPolicy
}

// EffectiveDayOfWeek returns DayOfWeek normalised into 0..6.
func (s ScheduleSpec) EffectiveDayOfWeek() time.Weekday {
	return time.Weekday(((s.DayOfWeek % 7) + 7) % 7)
}

// EffectiveDayOfMonth returns DayOfMonth, defaulting to 1.
func (s ScheduleSpec) EffectiveDayOfMonth() int {
	if s.DayOfMonth < 1 {
		return 1
	}
	return s.DayOfMonth
}

// EffectiveMonth returns Month, defaulting to January.
func (s ScheduleSpec) EffectiveMonth() time.Month {
	if s.Month < 1 || s.Month > 12 {
		return time.January
	}
	return time.Month(s.Month)
}

// EffectiveMonths returns the configured quarter months that are in range,
// or DefaultQuarterMonths when none are.
func (s ScheduleSpec) EffectiveMonths() []int {
	var out []int
	for _, m := range s.Months {
		if m >= 1 && m <= 12 {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return append([]int(nil), DefaultQuarterMonths...)
	}
	return out
}

// EffectiveDuration returns Duration, defaulting to Forever.
func (s ScheduleSpec) EffectiveDuration() DurationPolicy {
	if s.Duration == nil {
		return Forever{}
	}
	return s.Duration
}

// Validate checks the fields a configuration surface is expected to enforce.
// The resolver itself tolerates out-of-range values.
func (s ScheduleSpec) Validate() error {
	var errs []error
	if !s.Frequency.Valid() {
		errs = append(errs, fmt.Errorf("unknown frequency %q", s.Frequency))
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		errs = append(errs, fmt.Errorf("day_of_week %d out of range 0-6", s.DayOfWeek))
	}
	if s.DayOfMonth != 0 && (s.DayOfMonth < 1 || s.DayOfMonth > 28) {
		errs = append(errs, fmt.Errorf("day_of_month %d out of range 1-28", s.DayOfMonth))
	}
	for _, m := range s.Months {
		if m < 1 || m > 12 {
			errs = append(errs, fmt.Errorf("months entry %d out of range 1-12", m))
		}
	}
	if s.Month != 0 && (s.Month < 1 || s.Month > 12) {
		errs = append(errs, fmt.Errorf("month %d out of range 1-12", s.Month))
	}
	switch d := s.EffectiveDuration().(type) {
	case CountLimit:
		if d.RunCount < 1 {
			errs = append(errs, errors.New("run_count must be positive"))
		}
	case UntilDate:
		if d.RunUntil.IsZero() {
			errs = append(errs, errors.New("run_until is required"))
		}
	}
	return errors.Join(errs...)
}

// ScheduleState is the engine-owned part of a schedule trigger.
type ScheduleState struct {
	RunsCompleted int
}
