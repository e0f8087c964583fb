package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gwos/unit/config"
	"github.com/gwos/unit/duration"
	"github.com/gwos/unit/schedule"
	"github.com/gwos/unit/sink"
	"github.com/gwos/unit/timing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
)

const (
	serviceName    = "unitdur"
	stopTimeout    = 10 * time.Second
	maxOutputBytes = 1024
)

func runCmd(args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	config.BindFlags(flags)
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	config.AllowFlags = false
	config.NormalizeEnv()
	cfg := config.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tp, err := cfg.InitTracerProvider(serviceName); err == nil {
		otel.SetTracerProvider(tp)
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	m := newRunMetrics(cfg.Metrics.Namespace)
	if cfg.Metrics.Addr != "" {
		srv := m.serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r := &runner{
		sch:     schedule.New(),
		metrics: m,
		limit:   cfg.Metrics.Limit,
		series:  make(map[string]*sink.Series),
	}
	if err := r.start(cfg.Jobs); err != nil {
		r.stop()
		return err
	}
	hashsum, _ := config.Hashsum(cfg.Jobs)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-hup:
			hashsum = r.reload(hashsum)
		case <-ctx.Done():
			log.Info().Msg("stopping jobs")
			r.stop()
			r.summary()
			return nil
		}
	}
}

type runMetrics struct {
	registry *prometheus.Registry
	elapsed  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func newRunMetrics(namespace string) *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Elapsed time of job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}, []string{"job"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Count of failed job runs.",
		}, []string{"job"}),
	}
	m.registry.MustRegister(
		m.elapsed,
		m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *runMetrics) serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: stopTimeout}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Str("addr", addr).Msg("could not serve metrics")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

type runner struct {
	mu      sync.Mutex
	sch     *schedule.Scheduler
	metrics *runMetrics
	limit   int
	cancels []schedule.CancelFunc
	series  map[string]*sink.Series
	order   []string
}

// start schedules jobs, nothing is scheduled on a config error
func (r *runner) start(jobs config.Jobs) error {
	opts := make([]schedule.Options, 0, len(jobs))
	for _, job := range jobs {
		opts = append(opts, job.Options(r.task(job)))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range opts {
		cancel, err := r.sch.Schedule(o)
		if err != nil {
			for _, cancel := range r.cancels {
				cancel()
			}
			r.cancels = nil
			return fmt.Errorf("job %q: %w", jobs[i].Name, err)
		}
		r.cancels = append(r.cancels, cancel)
		log.Info().
			Str("job", jobs[i].Name).
			Str("schedule", string(o.Schedule)).
			Str("delay", o.Delay.String()).
			Str("initialDelay", o.InitialDelay.String()).
			Msg("job scheduled")
	}
	return nil
}

func (r *runner) reload(hashsum []byte) []byte {
	cfg, err := config.Load()
	if err != nil {
		log.Err(err).Msg("could not reload config, keeping jobs")
		return hashsum
	}
	chk, err := config.Hashsum(cfg.Jobs)
	if err == nil && bytes.Equal(hashsum, chk) {
		log.Info().Msg("jobs are not changed")
		return hashsum
	}
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.mu.Unlock()
	if err := r.start(cfg.Jobs); err != nil {
		log.Err(err).Msg("could not schedule reloaded jobs")
		return nil
	}
	log.Info().Int("jobs", len(cfg.Jobs)).Msg("jobs reloaded")
	return chk
}

func (r *runner) seriesOf(name string) *sink.Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[name]
	if !ok {
		s = sink.NewSeries(sink.WithLimit(r.limit), sink.WithDebugger(func(values []duration.Duration) {
			log.Warn().Str("job", name).Int("queued", len(values)).Msg("measurements queue is full")
		}))
		r.series[name] = s
		r.order = append(r.order, name)
	}
	return s
}

func (r *runner) task(job config.Job) func(context.Context) {
	series := r.seriesOf(job.Name)
	observer := r.metrics.elapsed.WithLabelValues(job.Name)
	failures := r.metrics.failures.WithLabelValues(job.Name)
	return func(ctx context.Context) {
		run := sink.WrapFunc(series, func() runResult {
			cmd := exec.CommandContext(ctx, job.Command[0], job.Command[1:]...)
			cmd.Env = append(os.Environ(), job.Environment...)
			var res runResult
			if job.CombinedOutput {
				res.output, res.err = cmd.CombinedOutput()
			} else {
				res.output, res.err = cmd.Output()
			}
			return res
		})
		output, err := timing.TimeErr("job "+job.Name, func() ([]byte, error) {
			res := run()
			return res.output, res.err
		}, timing.WithObserver(observer), timing.WithTrace(ctx, serviceName))
		if err != nil {
			failures.Inc()
		}
		if len(output) > maxOutputBytes {
			output = output[:maxOutputBytes]
		}
		log.Debug().Str("job", job.Name).Bytes("output", output).Msg("job output")
	}
}

type runResult struct {
	output []byte
	err    error
}

func (r *runner) stop() {
	done := r.sch.Stop()
	select {
	case <-done.Done():
	case <-time.After(stopTimeout):
		log.Warn().Msg("jobs are still running")
	}
}

func (r *runner) summary() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		s := r.series[name]
		st, err := s.Stats()
		if err != nil {
			log.Warn().Err(err).Str("job", name).Msg("no job summary")
			continue
		}
		log.Info().Str("job", name).Object("stats", st).Msg("job summary")
		_ = s.Close()
	}
}
