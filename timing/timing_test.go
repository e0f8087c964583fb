package timing

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// stepClock replaces now with a clock advancing by step on every reading
func stepClock(t *testing.T, step time.Duration) {
	t.Helper()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultNow := now
	t.Cleanup(func() { now = defaultNow })
	now = func() time.Time {
		ts = ts.Add(step)
		return ts
	}
}

func TestTime(t *testing.T) {
	stepClock(t, 90*time.Second+5*time.Microsecond)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	out := &bytes.Buffer{}
	logger := zerolog.New(out)

	res := Time("compute", func() int { return 42 }, WithLogger(logger))
	assert.Equal(t, 42, res)
	assert.Contains(t, out.String(), `"level":"info"`)
	assert.Contains(t, out.String(), `"elapsed":"1m 30s 5µs"`)
	assert.Contains(t, out.String(), `"elapsedNs":90000005000`)
	assert.Contains(t, out.String(), `"message":"compute"`)
}

func TestTimeLevel(t *testing.T) {
	stepClock(t, time.Millisecond)
	out := &bytes.Buffer{}
	logger := zerolog.New(out)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)
	res := Time("quiet", func() string { return "ok" }, WithLogger(logger), WithLevel(zerolog.DebugLevel))
	assert.Equal(t, "ok", res)
	assert.Empty(t, out.String())

	_ = Time("loud", func() string { return "ok" }, WithLogger(logger), WithLevel(zerolog.WarnLevel))
	assert.Contains(t, out.String(), `"level":"warn"`)
	assert.Contains(t, out.String(), `"elapsed":"1ms"`)
}

func TestTimeErr(t *testing.T) {
	stepClock(t, 2*time.Second)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	errTest := errors.New("boom")

	tests := []struct {
		name    string
		fn      func() (int, error)
		want    int
		wantErr error
		level   string
	}{
		{"success", func() (int, error) { return 1, nil }, 1, nil, `"level":"info"`},
		{"failure", func() (int, error) { return 0, errTest }, 0, errTest, `"level":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			res, err := TimeErr(tt.name, tt.fn, WithLogger(zerolog.New(out)))
			assert.Equal(t, tt.want, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, out.String(), tt.level)
			assert.Contains(t, out.String(), `"elapsed":"2s"`)
		})
	}
}

func TestDo(t *testing.T) {
	stepClock(t, time.Hour)
	called := false
	elapsed := Do("job", func() { called = true }, WithLogger(zerolog.Nop()))
	assert.True(t, called)
	assert.Equal(t, duration.MustParse("1h"), elapsed)
}

func TestWithObserver(t *testing.T) {
	stepClock(t, 1500*time.Millisecond)
	var observed []float64
	observer := prometheus.ObserverFunc(func(v float64) { observed = append(observed, v) })

	_ = Time("observed", func() bool { return true }, WithLogger(zerolog.Nop()), WithObserver(observer))
	_, _ = TimeErr("observed", func() (bool, error) { return false, errors.New("x") },
		WithLogger(zerolog.Nop()), WithObserver(observer))
	assert.Equal(t, []float64{1.5, 1.5}, observed)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_seconds"})
	_ = Time("histogram", func() bool { return true }, WithLogger(zerolog.Nop()), WithObserver(histogram))
}

func TestWithTrace(t *testing.T) {
	stepClock(t, 3*time.Millisecond)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defaultProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(defaultProvider)

	_, err := TimeErr("traced", func() (int, error) { return 0, errors.New("failed") },
		WithLogger(zerolog.Nop()), WithTrace(context.Background(), "timing_test"))
	assert.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "traced", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "3ms", attrs[ElapsedFieldName])
	assert.Equal(t, "true", attrs["err"])
}

func TestStopwatch(t *testing.T) {
	stepClock(t, time.Second)
	sw := Start()
	assert.Equal(t, duration.MustParse("1s"), sw.Lap())
	assert.Equal(t, duration.MustParse("1s"), sw.Lap())
	/* start was read before both laps */
	assert.Equal(t, duration.MustParse("3s"), sw.Elapsed())
}

func TestSinceClampsNegative(t *testing.T) {
	stepClock(t, time.Second)
	assert.Equal(t, duration.Duration(0), Since(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)))
}
