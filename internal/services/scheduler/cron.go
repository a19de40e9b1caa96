package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
// The timezone is applied via the CRON_TZ= prefix; empty means UTC rather
// than the host's local zone.
func parseCronExpr(expr string, timezone string) (cron.Schedule, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	expr = "CRON_TZ=" + timezone + " " + expr
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}

// cronLogger adapts slog to cron.Logger. Routine cron chatter goes to debug.
type cronLogger struct{}

var _ cron.Logger = cronLogger{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("scheduler: cron "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("scheduler: cron "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
