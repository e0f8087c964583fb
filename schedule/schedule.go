// Package schedule runs tasks once or periodically on top of cron
package schedule

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/gwos/unit/logzer"
	"github.com/robfig/cron/v3"
)

var (
	ErrSchedule = fmt.Errorf("schedule error")
	ErrConfig   = fmt.Errorf("%w: invalid options", ErrSchedule)
	ErrStopped  = fmt.Errorf("%w: scheduler stopped", ErrSchedule)
)

// Options defines scheduled task
type Options struct {
	Schedule Mode
	Task     func(context.Context)
	// Delay is the single delay for Once and the period otherwise
	Delay *duration.Duration
	// InitialDelay is ignored by Once
	InitialDelay duration.Duration
}

// CancelFunc removes the task and cancels the context of the running one
// it is safe to call it many times
type CancelFunc func()

// Scheduler defines scheduler over cron
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	handles map[*handle]struct{}
	stopped bool
}

type options struct {
	logger cron.Logger
}

// Option defines scheduler option
type Option func(*options)

// WithLogger overrides logger for cron events
func WithLogger(logger cron.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates running scheduler
func New(opts ...Option) *Scheduler {
	o := &options{logger: CronLogger{logzer.NewSLogger("cron")}}
	for _, optFn := range opts {
		optFn(o)
	}
	c := cron.New(
		cron.WithLogger(o.logger),
		cron.WithChain(
			cron.Recover(o.logger),
			cron.DelayIfStillRunning(o.logger),
		),
	)
	/* start before adding entries so the next time is computed once per entry */
	c.Start()
	return &Scheduler{cron: c, handles: make(map[*handle]struct{})}
}

// Schedule validates options and adds task
func (s *Scheduler) Schedule(o Options) (CancelFunc, error) {
	initial, period, err := o.delays()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{ctx: ctx, cancel: cancel, task: o.Task}
	var (
		job   cron.FuncJob
		sched cron.Schedule
	)
	switch o.Schedule {
	case Once:
		job, sched = func() { s.runOnce(h) }, newDelaySchedule(initial, 0)
	case AtFixedRate:
		job, sched = h.run, newDelaySchedule(initial, period)
	case WithFixedDelay:
		job, sched = func() { s.runWithDelay(h, period) }, newDelaySchedule(initial, 0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		cancel()
		return nil, ErrStopped
	}
	s.handles[h] = struct{}{}
	/* the job waits for entry id on completion */
	h.mu.Lock()
	h.id = s.cron.Schedule(sched, job)
	h.mu.Unlock()
	return func() { s.cancel(h) }, nil
}

// Len returns count of active tasks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Stop cancels all tasks and stops cron
// returns context which is done when running tasks complete
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	handles := make([]*handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		s.cancel(h)
	}
	return s.cron.Stop()
}

func (s *Scheduler) cancel(h *handle) {
	h.cancel()
	h.mu.Lock()
	if h.id != 0 {
		s.cron.Remove(h.id)
		h.id = 0
	}
	h.mu.Unlock()
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}

func (s *Scheduler) runOnce(h *handle) {
	h.run()
	s.cancel(h)
}

func (s *Scheduler) runWithDelay(h *handle, delay time.Duration) {
	h.run()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return
	}
	s.cron.Remove(h.id)
	h.id = s.cron.Schedule(newDelaySchedule(delay, 0), cron.FuncJob(func() {
		s.runWithDelay(h, delay)
	}))
}

type handle struct {
	mu     sync.Mutex
	id     cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
	task   func(context.Context)
}

func (h *handle) run() {
	/* skip runs delayed behind a cancelled one */
	if h.ctx.Err() != nil {
		return
	}
	h.task(h.ctx)
}

func (o Options) delays() (initial, period time.Duration, err error) {
	if o.Task == nil {
		return 0, 0, fmt.Errorf("%w: missing task", ErrConfig)
	}
	if _, err := ParseMode(string(o.Schedule)); err != nil {
		return 0, 0, err
	}
	if o.Delay == nil {
		return 0, 0, fmt.Errorf("%w: missing delay", ErrConfig)
	}
	delay, err := millis(*o.Delay)
	if err != nil {
		return 0, 0, err
	}
	if !o.Schedule.periodic() {
		return delay, 0, nil
	}
	if delay == 0 {
		return 0, 0, fmt.Errorf("%w: %s delay %q is less than 1ms", ErrConfig, o.Schedule, o.Delay.String())
	}
	if initial, err = millis(o.InitialDelay); err != nil {
		return 0, 0, err
	}
	return initial, delay, nil
}

// millis truncates the sub-millisecond remainder
func millis(d duration.Duration) (time.Duration, error) {
	ms := d.Milliseconds()
	if ms > math.MaxInt64/uint64(time.Millisecond) {
		return 0, fmt.Errorf("%w: delay %q is out of range", ErrConfig, d.String())
	}
	return time.Duration(ms) * time.Millisecond, nil
}

var (
	defaultOnce      sync.Once
	defaultScheduler *Scheduler
)

// Default returns the lazily started package scheduler
func Default() *Scheduler {
	defaultOnce.Do(func() {
		defaultScheduler = New()
	})
	return defaultScheduler
}

// Schedule adds task to the default scheduler
func Schedule(o Options) (CancelFunc, error) {
	return Default().Schedule(o)
}
