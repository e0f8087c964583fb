package logzer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gwos/unit/duration"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// SLogHandler translates slog.Record into zerolog.Event,
// non-negative time.Duration attributes are written in the canonical duration form
// inspired by https://github.com/golang/example/blob/master/slog-handler-guide/README.md
type SLogHandler struct {
	attrs  []slog.Attr
	groups []string

	once sync.Once

	CallerSkipFrame int
	GroupsFieldName string
}

// NewSLogger returns slog.Logger writing into the global zerolog logger
func NewSLogger(groups ...string) *slog.Logger {
	h := &SLogHandler{CallerSkipFrame: 3, groups: groups}
	return slog.New(h)
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	}
	return zerolog.ErrorLevel
}

func (h *SLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zerolog.GlobalLevel() <= zerologLevel(level)
}

func (h *SLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.once.Do(func() {
		if h.GroupsFieldName == "" {
			h.GroupsFieldName = "logger"
		}
	})

	e := zlog.WithLevel(zerologLevel(r.Level))
	if len(h.groups) > 0 {
		_ = e.Strs(h.GroupsFieldName, h.groups)
	}
	for _, attr := range h.attrs {
		appendAttr(e, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		appendAttr(e, attr)
		return true
	})
	e.CallerSkipFrame(h.CallerSkipFrame).Msg(r.Message)
	return nil
}

func (h *SLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nested := h.clone()
	nested.attrs = append(nested.attrs, attrs...)
	return nested
}

func (h *SLogHandler) WithGroup(name string) slog.Handler {
	nested := h.clone()
	nested.groups = append(nested.groups, name)
	return nested
}

func (h *SLogHandler) clone() *SLogHandler {
	nested := &SLogHandler{CallerSkipFrame: h.CallerSkipFrame, GroupsFieldName: h.GroupsFieldName}
	nested.attrs = append(nested.attrs, h.attrs...)
	nested.groups = append(nested.groups, h.groups...)
	return nested
}

func appendAttr(e *zerolog.Event, attr slog.Attr) {
	v := attr.Value.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		e.Bool(attr.Key, v.Bool())
	case slog.KindDuration:
		if d, err := duration.FromStd(v.Duration()); err == nil {
			e.Str(attr.Key, d.String())
		} else {
			e.Dur(attr.Key, v.Duration())
		}
	case slog.KindFloat64:
		e.Float64(attr.Key, v.Float64())
	case slog.KindInt64:
		e.Int64(attr.Key, v.Int64())
	case slog.KindString:
		e.Str(attr.Key, v.String())
	case slog.KindTime:
		e.Time(attr.Key, v.Time())
	case slog.KindUint64:
		e.Uint64(attr.Key, v.Uint64())
	case slog.KindGroup:
		e.Str(attr.Key, v.String())
	default:
		if err, ok := v.Any().(error); ok {
			e.AnErr(attr.Key, err)
			return
		}
		e.Interface(attr.Key, v.Any())
	}
}
