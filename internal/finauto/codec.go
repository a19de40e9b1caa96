package finauto

import (
	"encoding/json"
	"fmt"
)

// scheduleConfig is the stored shape of a schedule trigger: the user-authored
// spec and the engine-owned counter share one JSON object.
type scheduleConfig struct {
	Frequency     Frequency `json:"frequency"`
	Time          TimeOfDay `json:"time"`
	Timezone      string    `json:"timezone,omitempty"`
	DayOfWeek     *int      `json:"day_of_week,omitempty"`
	DayOfMonth    *int      `json:"day_of_month,omitempty"`
	Months        []int     `json:"months,omitempty"`
	Month         *int      `json:"month,omitempty"`
	DurationType  string    `json:"duration_type,omitempty"`
	RunCount      *int      `json:"run_count,omitempty"`
	RunUntil      string    `json:"run_until,omitempty"`
	RunsCompleted *int      `json:"runs_completed,omitempty"`
}

func intPtr(v int) *int { return &v }

func (s ScheduleSpec) config() scheduleConfig {
	c := scheduleConfig{
		Frequency: s.Frequency,
		Time:      s.Time,
		Timezone:  s.Timezone,
	}
	switch s.Frequency {
	case FrequencyWeekly:
		c.DayOfWeek = intPtr(s.DayOfWeek)
	case FrequencyMonthly:
		c.DayOfMonth = intPtr(s.EffectiveDayOfMonth())
	case FrequencyQuarterly:
		c.DayOfMonth = intPtr(s.EffectiveDayOfMonth())
		c.Months = s.EffectiveMonths()
	case FrequencyYearly:
		c.DayOfMonth = intPtr(s.EffectiveDayOfMonth())
		c.Month = intPtr(int(s.EffectiveMonth()))
	}
	switch d := s.EffectiveDuration().(type) {
	case Forever:
		c.DurationType = d.Type()
	case CountLimit:
		c.DurationType = d.Type()
		c.RunCount = intPtr(d.RunCount)
	case UntilDate:
		c.DurationType = d.Type()
		c.RunUntil = d.RunUntil.String()
	}
	return c
}

func (c scheduleConfig) spec() (ScheduleSpec, error) {
	s := ScheduleSpec{
		Frequency: c.Frequency,
		Time:      c.Time,
		Timezone:  c.Timezone,
		Months:    c.Months,
	}
	if c.DayOfWeek != nil {
		s.DayOfWeek = *c.DayOfWeek
	}
	if c.DayOfMonth != nil {
		s.DayOfMonth = *c.DayOfMonth
	}
	if c.Month != nil {
		s.Month = *c.Month
	}
	switch c.DurationType {
	case "", "forever":
		s.Duration = Forever{}
	case "count":
		if c.RunCount == nil {
			return ScheduleSpec{}, fmt.Errorf("duration_type count requires run_count")
		}
		s.Duration = CountLimit{RunCount: *c.RunCount}
	case "until":
		d, err := ParseDate(c.RunUntil)
		if err != nil {
			return ScheduleSpec{}, fmt.Errorf("run_until: %w", err)
		}
		s.Duration = UntilDate{RunUntil: d}
	default:
		return ScheduleSpec{}, fmt.Errorf("unknown duration_type %q", c.DurationType)
	}
	return s, nil
}

func (s ScheduleSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.config())
}

func (s *ScheduleSpec) UnmarshalJSON(b []byte) error {
	var c scheduleConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}
	spec, err := c.spec()
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// EncodeTrigger returns the stored discriminant and config blob for t.
// Manual triggers have no config.
func EncodeTrigger(t Trigger) (TriggerType, []byte, error) {
	switch v := t.(type) {
	case ManualTrigger:
		return TriggerManual, nil, nil
	case ScheduleTrigger:
		c := v.Spec.config()
		c.RunsCompleted = intPtr(v.State.RunsCompleted)
		b, err := json.Marshal(c)
		if err != nil {
			return "", nil, fmt.Errorf("encode schedule config: %w", err)
		}
		return TriggerSchedule, b, nil
	case nil:
		return "", nil, fmt.Errorf("encode trigger: nil trigger")
	default:
		return "", nil, fmt.Errorf("encode trigger: unsupported type %T", t)
	}
}

// DecodeTrigger rebuilds a trigger from its stored discriminant and config.
func DecodeTrigger(typ TriggerType, config []byte) (Trigger, error) {
	switch typ {
	case TriggerManual:
		return ManualTrigger{}, nil
	case TriggerSchedule:
		var c scheduleConfig
		if err := json.Unmarshal(config, &c); err != nil {
			return nil, fmt.Errorf("decode schedule config: %w", err)
		}
		spec, err := c.spec()
		if err != nil {
			return nil, fmt.Errorf("decode schedule config: %w", err)
		}
		st := ScheduleTrigger{Spec: spec}
		if c.RunsCompleted != nil {
			st.State.RunsCompleted = *c.RunsCompleted
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", typ)
	}
}

// EncodeActionKind returns the stored discriminant and config blob for k.
func EncodeActionKind(k ActionKind) (ActionType, []byte, error) {
	switch v := k.(type) {
	case EmailAction:
		b, err := json.Marshal(v)
		return ActionEmail, b, err
	case NotificationAction:
		b, err := json.Marshal(v)
		return ActionNotification, b, err
	default:
		return "", nil, fmt.Errorf("encode action: unsupported type %T", k)
	}
}

// DecodeActionKind rebuilds an action kind from its stored discriminant and config.
func DecodeActionKind(typ ActionType, config []byte) (ActionKind, error) {
	switch typ {
	case ActionEmail:
		var e EmailAction
		if err := json.Unmarshal(config, &e); err != nil {
			return nil, fmt.Errorf("decode email action: %w", err)
		}
		return e, nil
	case ActionNotification:
		var n NotificationAction
		if err := json.Unmarshal(config, &n); err != nil {
			return nil, fmt.Errorf("decode notification action: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", typ)
	}
}

type automationJSON struct {
	automationAlias
	TriggerType   TriggerType     `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`
}

type automationAlias Automation

func (a Automation) MarshalJSON() ([]byte, error) {
	typ, cfg, err := EncodeTrigger(a.Trigger)
	if err != nil {
		return nil, err
	}
	return json.Marshal(automationJSON{
		automationAlias: automationAlias(a),
		TriggerType:     typ,
		TriggerConfig:   cfg,
	})
}

func (a *Automation) UnmarshalJSON(b []byte) error {
	var v automationJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	t, err := DecodeTrigger(v.TriggerType, v.TriggerConfig)
	if err != nil {
		return err
	}
	*a = Automation(v.automationAlias)
	a.Trigger = t
	return nil
}

type actionJSON struct {
	actionAlias
	ActionType ActionType      `json:"action_type"`
	Config     json.RawMessage `json:"config"`
}

type actionAlias Action

func (a Action) MarshalJSON() ([]byte, error) {
	typ, cfg, err := EncodeActionKind(a.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{actionAlias: actionAlias(a), ActionType: typ, Config: cfg})
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var v actionJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	k, err := DecodeActionKind(v.ActionType, v.Config)
	if err != nil {
		return err
	}
	*a = Action(v.actionAlias)
	a.Kind = k
	return nil
}
