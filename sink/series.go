// Package sink collects measured durations
package sink

import (
	"container/ring"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/gwos/unit/duration"
	"github.com/rs/zerolog"
)

const defaultCapacity = 8

var (
	ErrSeries         = fmt.Errorf("series error")
	ErrSeriesCapacity = fmt.Errorf("%w: capacity is exhausted", ErrSeries)
	ErrSeriesClosed   = fmt.Errorf("%w: closed", ErrSeries)
)

type opKind uint8

const (
	opAppend opKind = iota
	opValues
	opStats
	opReset
)

type op struct {
	kind   opKind
	done   chan struct{}
	value  duration.Duration
	values []duration.Duration
	stats  Stats
}

// Stats summarizes every value appended since the last reset
// regardless of the retention limit
type Stats struct {
	Count int
	// Total saturates at the maximum duration
	Total duration.Duration
	Min   duration.Duration
	Max   duration.Duration
	Mean  duration.Duration
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler interface
func (st Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("count", st.Count).
		Str("total", st.Total.String()).
		Str("min", st.Min.String()).
		Str("max", st.Max.String()).
		Str("mean", st.Mean.String())
}

// Series defines a collection of durations owned by a single goroutine
type Series struct {
	mu       sync.Mutex
	capacity uint8
	closed   bool
	debugger func([]duration.Duration)
	limit    int
	queue    chan *op
	quit     chan struct{}
	ring     *ring.Ring
	stopped  chan struct{}

	/* owned by run goroutine */
	values     []duration.Duration
	count      int
	totalHi    uint64
	totalLo    uint64
	minV, maxV duration.Duration
}

// SeriesOption defines series option
type SeriesOption func(*Series)

// NewSeries creates series and starts its goroutine
func NewSeries(opts ...SeriesOption) *Series {
	s := newSeries(opts...)
	go s.run()
	return s
}

func newSeries(opts ...SeriesOption) *Series {
	s := &Series{capacity: defaultCapacity}
	for _, optFn := range opts {
		optFn(s)
	}
	if s.capacity < 1 {
		s.capacity = 1
	}
	s.ring = ring.New(int(s.capacity))
	s.queue = make(chan *op, s.capacity)
	s.quit = make(chan struct{})
	s.stopped = make(chan struct{})
	return s
}

// WithCapacity defines capacity of the queue
func WithCapacity(c uint8) SeriesOption {
	return func(s *Series) {
		s.capacity = c
	}
}

// WithLimit keeps only the last n values, 0 means unbounded
func WithLimit(n int) SeriesOption {
	return func(s *Series) {
		s.limit = n
	}
}

// WithDebugger defines handler invoked with recently queued values
// when the queue is full
func WithDebugger(fn func([]duration.Duration)) SeriesOption {
	return func(s *Series) {
		s.debugger = fn
	}
}

// AppendAsync queues value and returns immediately
func (s *Series) AppendAsync(d duration.Duration) error {
	return s.push(&op{kind: opAppend, value: d})
}

// Append queues value and returns after it is applied
func (s *Series) Append(d duration.Duration) error {
	return s.do(&op{kind: opAppend, value: d})
}

// Values returns a copy of retained values, the oldest first
func (s *Series) Values() []duration.Duration {
	p := &op{kind: opValues}
	if err := s.do(p); err != nil {
		return nil
	}
	return p.values
}

// Stats returns summary, fails with ErrSeriesClosed after Close
func (s *Series) Stats() (Stats, error) {
	p := &op{kind: opStats}
	if err := s.do(p); err != nil {
		return Stats{}, err
	}
	return p.stats, nil
}

// Reset drops values and summary
func (s *Series) Reset() error {
	return s.do(&op{kind: opReset})
}

// Close applies queued operations and stops the goroutine
func (s *Series) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSeriesClosed
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()
	<-s.stopped
	return nil
}

func (s *Series) push(p *op) error {
	p.done = make(chan struct{})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSeriesClosed
	}
	select {
	case s.queue <- p:
		if p.kind == opAppend {
			/* put value into ring buffer for debug */
			s.ring.Value = p.value
			s.ring = s.ring.Next()
		}
		return nil
	default:
		if s.debugger != nil {
			lastValues := []duration.Duration{}
			s.ring.Do(func(v interface{}) {
				if v != nil {
					lastValues = append(lastValues, v.(duration.Duration))
				}
			})
			s.debugger(lastValues)
		}
		return fmt.Errorf("%w: %v", ErrSeriesCapacity, s.capacity)
	}
}

func (s *Series) do(p *op) error {
	p.done = make(chan struct{})
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSeriesClosed
	}
	select {
	case s.queue <- p:
		if p.kind == opAppend {
			s.mu.Lock()
			s.ring.Value = p.value
			s.ring = s.ring.Next()
			s.mu.Unlock()
		}
	case <-s.quit:
		return ErrSeriesClosed
	}
	select {
	case <-p.done:
		return nil
	case <-s.stopped:
		/* queued after the final drain */
		select {
		case <-p.done:
			return nil
		default:
			return ErrSeriesClosed
		}
	}
}

func (s *Series) run() {
	defer close(s.stopped)
	for {
		select {
		case p := <-s.queue:
			s.apply(p)
		case <-s.quit:
			for {
				select {
				case p := <-s.queue:
					s.apply(p)
				default:
					return
				}
			}
		}
	}
}

func (s *Series) apply(p *op) {
	switch p.kind {
	case opAppend:
		s.values = append(s.values, p.value)
		if s.limit > 0 && len(s.values) > s.limit {
			s.values = append(s.values[:0], s.values[len(s.values)-s.limit:]...)
		}
		if s.count == 0 || p.value < s.minV {
			s.minV = p.value
		}
		if s.count == 0 || p.value > s.maxV {
			s.maxV = p.value
		}
		var carry uint64
		s.totalLo, carry = bits.Add64(s.totalLo, uint64(p.value), 0)
		s.totalHi += carry
		s.count++
	case opValues:
		p.values = append([]duration.Duration{}, s.values...)
	case opStats:
		p.stats = s.stats()
	case opReset:
		s.values = nil
		s.count, s.totalHi, s.totalLo, s.minV, s.maxV = 0, 0, 0, 0, 0
	}
	close(p.done)
}

func (s *Series) stats() Stats {
	if s.count == 0 {
		return Stats{}
	}
	st := Stats{Count: s.count, Min: s.minV, Max: s.maxV, Total: duration.Duration(s.totalLo)}
	if s.totalHi > 0 {
		st.Total = duration.Duration(math.MaxUint64)
	}
	/* totalHi is less than count as every value fits in 64 bits */
	mean, _ := bits.Div64(s.totalHi, s.totalLo, uint64(s.count))
	st.Mean = duration.Duration(mean)
	return st
}
