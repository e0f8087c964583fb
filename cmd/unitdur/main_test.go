package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwos/unit/config"
	"github.com/gwos/unit/duration"
	"github.com/gwos/unit/schedule"
	"github.com/gwos/unit/sink"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		stdin    string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"no args", nil, "", 2, "", "Usage"},
		{"unknown", []string{"bogus"}, "", 2, "", `unknown command "bogus"`},
		{"help", []string{"help"}, "", 0, "Usage", ""},
		{"parse", []string{"parse", "1D 10h 17m 36s", "0ns"}, "", 0,
			"123456000000000\t1D 10h 17m 36s\n0\t0ns\n", ""},
		{"parse non-canonical", []string{"parse", "90s"}, "", 0, "90000000000\t1m 30s\n", ""},
		{"parse error", []string{"parse", "1h", "1 h"}, "", 1, "3600000000000\t1h\n", "unitdur parse"},
		{"parse empty", []string{"parse"}, "", 1, "", "expected duration text"},
		{"format", []string{"format", "18446744073709551615"}, "", 0,
			"584Y 343D 23h 34m 33s 709ms 551µs 615ns\n", ""},
		{"format ms", []string{"format", "--unit", "ms", "90000"}, "", 0, "1m 30s\n", ""},
		{"format ms overflow", []string{"format", "--unit=ms", "18446744073709551615"}, "", 1, "", "out of range"},
		{"format unit", []string{"format", "--unit", "s", "1"}, "", 1, "", "unknown unit"},
		{"format syntax", []string{"format", "-5"}, "", 1, "", "unitdur format"},
		{"read stdin", []string{"read"}, `timeout: #unit/duration "1m 30s"`, 0,
			"9\t#unit/duration\t1m 30s\t90000000000\n", ""},
		{"read malformed", []string{"read"}, `#unit/duration "1 m"`, 1, "", "#unit/duration at offset 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
			code := execute(tt.args, strings.NewReader(tt.stdin), stdout, stderr)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantOut != "" {
				if tt.wantCode == 0 && tt.name != "help" {
					assert.Equal(t, tt.wantOut, stdout.String())
				} else {
					assert.Contains(t, stdout.String(), tt.wantOut)
				}
			}
			if tt.wantErr != "" {
				assert.Contains(t, stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "data.edn")
	require.NoError(t, os.WriteFile(filePath,
		[]byte(`{:a #unit/duration "1s" :b #inst "2024-01-01" :c #unit/duration "1h 1ns"}`), 0644))
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := execute([]string{"read", filePath}, strings.NewReader(""), stdout, stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "4\t#unit/duration\t1s\t1000000000\n"+
		"49\t#unit/duration\t1h 1ns\t3600000000001\n", stdout.String())
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("UNITDUR_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = os.Stdout.WriteString("helper output")
	if os.Getenv("UNITDUR_HELPER_FAIL") == "1" {
		os.Exit(1)
	}
	os.Exit(0)
}

func helperJob(name string, fail bool) config.Job {
	env := []string{"UNITDUR_HELPER_PROCESS=1"}
	if fail {
		env = append(env, "UNITDUR_HELPER_FAIL=1")
	}
	delay := duration.MustParse("1ms")
	return config.Job{
		Name:        name,
		Command:     []string{os.Args[0], "-test.run=TestHelperProcess"},
		Environment: env,
		Schedule:    schedule.Once,
		Delay:       &delay,
	}
}

func TestRunner(t *testing.T) {
	r := &runner{
		sch:     schedule.New(),
		metrics: newRunMetrics("test"),
		series:  make(map[string]*sink.Series),
	}
	require.NoError(t, r.start(config.Jobs{helperJob("ok", false), helperJob("fail", true)}))

	/* once jobs leave the scheduler after completion */
	require.Eventually(t, func() bool { return r.sch.Len() == 0 }, 10*time.Second, 10*time.Millisecond)
	for _, name := range []string{"ok", "fail"} {
		st, err := r.seriesOf(name).Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, st.Count, name)
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(r.metrics.failures.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.failures.WithLabelValues("fail")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.metrics.elapsed))
	assert.Equal(t, []string{"ok", "fail"}, r.order)

	r.stop()
	r.summary()
	assert.ErrorIs(t, r.seriesOf("ok").Append(0), sink.ErrSeriesClosed)
}

func TestRunnerStartConfigError(t *testing.T) {
	r := &runner{
		sch:     schedule.New(),
		metrics: newRunMetrics("test"),
		series:  make(map[string]*sink.Series),
	}
	defer r.stop()

	bad := helperJob("bad", false)
	bad.Schedule = schedule.AtFixedRate
	bad.Delay = nil
	err := r.start(config.Jobs{helperJob("ok", false), bad})
	assert.ErrorIs(t, err, schedule.ErrConfig)
	assert.Contains(t, err.Error(), `job "bad"`)
	assert.Empty(t, r.cancels)
	assert.Equal(t, 0, r.sch.Len())
}
