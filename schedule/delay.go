package schedule

import (
	"sync"
	"time"
)

// delaySchedule implements cron.Schedule for delays
// cron asks for Next on add and after each run
type delaySchedule struct {
	mu      sync.Mutex
	started bool
	next    time.Time
	initial time.Duration
	// zero period fires once
	period time.Duration
}

func newDelaySchedule(initial, period time.Duration) *delaySchedule {
	return &delaySchedule{initial: initial, period: period}
}

// Next implements cron.Schedule interface
func (s *delaySchedule) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.started:
		s.started = true
		s.next = t.Add(s.initial)
	case s.next.IsZero() || t.Before(s.next):
		/* not fired yet, cron restarted */
	case s.period == 0:
		s.next = time.Time{}
	default:
		/* next run follows the scheduled one, a past time runs at once */
		s.next = s.next.Add(s.period)
	}
	return s.next
}
