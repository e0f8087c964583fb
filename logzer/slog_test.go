package logzer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSLogHandler(t *testing.T) {
	out := &syncBuffer{}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defaultLogger := log.Logger
	defer func() { log.Logger = defaultLogger }()
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()

	slogger := slog.New((&SLogHandler{CallerSkipFrame: 3}).
		WithGroup("foo.bar").
		WithAttrs([]slog.Attr{slog.String("foo", "bar")}).
		WithGroup("bar.foo"))

	slogger.LogAttrs(context.TODO(), slog.LevelInfo, "__slogger__ message",
		slog.String("aaa", "bbb"), slog.Int("i", 111),
		slog.Duration("elapsed", 90*time.Second+5*time.Microsecond),
		slog.Duration("negative", -time.Second))
	slogger.Debug("__slogger__ debug")

	content := out.String()
	assert.Contains(t, content, `"logger":["foo.bar","bar.foo"]`)
	assert.Contains(t, content, `"message":"__slogger__ message"`)
	assert.Contains(t, content, `"aaa":"bbb"`)
	assert.Contains(t, content, `"foo":"bar"`)
	assert.Contains(t, content, `"i":111`)
	assert.Contains(t, content, `"elapsed":"1m 30s 5µs"`)
	assert.Contains(t, content, `"negative":-1000`)
	assert.NotContains(t, content, "__slogger__ debug")
}

func TestNewSLogger(t *testing.T) {
	out := &syncBuffer{}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defaultLogger := log.Logger
	defer func() { log.Logger = defaultLogger }()
	log.Logger = zerolog.New(out)

	slogger := NewSLogger("cron")
	assert.True(t, slogger.Enabled(context.TODO(), slog.LevelWarn))
	assert.False(t, slogger.Enabled(context.TODO(), slog.LevelDebug))
	slogger.Warn("schedule", "next", time.Minute)
	assert.Contains(t, out.String(), `"level":"warn"`)
	assert.Contains(t, out.String(), `"logger":["cron"]`)
	assert.Contains(t, out.String(), `"next":"1m"`)
}
