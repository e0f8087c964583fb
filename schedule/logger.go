package schedule

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts slog.Logger to cron.Logger interface
// cron info messages are verbose and go to Debug level
type CronLogger struct {
	*slog.Logger
}

var _ cron.Logger = CronLogger{}

// Info implements cron.Logger interface
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, keysAndValues...)
}

// Error implements cron.Logger interface
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(keysAndValues, "error", err)...)
}
