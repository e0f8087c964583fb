// Package timing logs the elapsed wall-clock time of arbitrary computations
package timing

import (
	"context"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// ElapsedFieldName is the log field with canonical duration
var ElapsedFieldName = "elapsed"

// now is replaceable in tests
var now = time.Now

type options struct {
	logger     *zerolog.Logger
	level      zerolog.Level
	observer   prometheus.Observer
	traceCtx   context.Context
	tracerName string
}

// Option defines timing option
type Option func(*options)

// WithLogger overrides the global logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithLevel sets level of the log line, Info by default
func WithLevel(lvl zerolog.Level) Option {
	return func(o *options) { o.level = lvl }
}

// WithObserver observes elapsed seconds, useful with prometheus.Histogram
func WithObserver(observer prometheus.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithTrace wraps the computation into span
func WithTrace(ctx context.Context, tracerName string) Option {
	return func(o *options) {
		o.traceCtx = ctx
		o.tracerName = tracerName
	}
}

// Time runs fn, logs elapsed time and returns what fn returned
func Time[T any](msg string, fn func() T, opts ...Option) T {
	var res T
	_, _ = measure(msg, func() error {
		res = fn()
		return nil
	}, opts)
	return res
}

// TimeErr is like Time for functions which can fail, the failure is logged on Error level
func TimeErr[T any](msg string, fn func() (T, error), opts ...Option) (T, error) {
	var res T
	_, err := measure(msg, func() error {
		var err error
		res, err = fn()
		return err
	}, opts)
	return res, err
}

// Do is like Time for functions without result, returns elapsed time
func Do(msg string, fn func(), opts ...Option) duration.Duration {
	elapsed, _ := measure(msg, func() error {
		fn()
		return nil
	}, opts)
	return elapsed
}

func measure(msg string, fn func() error, opts []Option) (duration.Duration, error) {
	o := &options{level: zerolog.InfoLevel}
	for _, optFn := range opts {
		optFn(o)
	}
	logger := &log.Logger
	if o.logger != nil {
		logger = o.logger
	}

	var span trace.Span
	if o.traceCtx != nil {
		_, span = StartTraceSpan(o.traceCtx, o.tracerName, msg)
	}

	start := now()
	err := fn()
	elapsed := Since(start)

	if span != nil {
		EndTraceSpan(span, TraceAttrElapsed(elapsed), TraceAttrError(err))
	}
	if o.observer != nil {
		o.observer.Observe(float64(elapsed) / float64(time.Second))
	}

	lvl := o.level
	if err != nil {
		lvl = zerolog.ErrorLevel
	}
	logger.WithLevel(lvl).Err(err).
		Str(ElapsedFieldName, elapsed.String()).
		Uint64("elapsedNs", elapsed.Nanoseconds()).
		Msg(msg)
	return elapsed, err
}

// Since returns elapsed time relying on the monotonic clock reading of start
func Since(start time.Time) duration.Duration {
	if d := now().Sub(start); d > 0 {
		return duration.Nanoseconds(uint64(d))
	}
	return 0
}

// Stopwatch measures elapsed time
type Stopwatch struct {
	start time.Time
	lap   time.Time
}

// Start returns running stopwatch
func Start() *Stopwatch {
	t := now()
	return &Stopwatch{start: t, lap: t}
}

// Elapsed returns time since start
func (sw *Stopwatch) Elapsed() duration.Duration {
	return Since(sw.start)
}

// Lap returns time since the previous lap or start
func (sw *Stopwatch) Lap() duration.Duration {
	t := now()
	d := t.Sub(sw.lap)
	sw.lap = t
	if d > 0 {
		return duration.Nanoseconds(uint64(d))
	}
	return 0
}
