package sink

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ns(n uint64) duration.Duration { return duration.Nanoseconds(n) }

func statsOf(t *testing.T, s *Series) Stats {
	t.Helper()
	st, err := s.Stats()
	require.NoError(t, err)
	return st
}

func TestSeriesAppend(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	for _, d := range []duration.Duration{ns(30), ns(10), ns(20)} {
		assert.NoError(t, s.Append(d))
	}
	assert.Equal(t, []duration.Duration{ns(30), ns(10), ns(20)}, s.Values())
	assert.Equal(t, Stats{Count: 3, Total: ns(60), Min: ns(10), Max: ns(30), Mean: ns(20)}, statsOf(t, s))
}

func TestSeriesAppendAsync(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	assert.NoError(t, s.AppendAsync(duration.MustParse("1s")))
	assert.NoError(t, s.AppendAsync(duration.MustParse("2s")))
	/* synchronous call is applied after the queued ones */
	assert.NoError(t, s.Append(duration.MustParse("3s")))
	assert.Equal(t, duration.MustParse("2s"), statsOf(t, s).Mean)
	assert.Len(t, s.Values(), 3)
}

func TestSeriesWithCapacity(t *testing.T) {
	var debugged []duration.Duration
	s := newSeries(WithCapacity(2), WithDebugger(func(values []duration.Duration) {
		debugged = values
	}))

	assert.NoError(t, s.AppendAsync(ns(1)))
	assert.NoError(t, s.AppendAsync(ns(2)))
	err := s.AppendAsync(ns(3))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrSeries))
	assert.True(t, errors.Is(err, ErrSeriesCapacity))
	assert.Equal(t, []duration.Duration{ns(1), ns(2)}, debugged)

	/* queued values are applied once the owner starts */
	go s.run()
	defer s.Close()
	assert.Equal(t, []duration.Duration{ns(1), ns(2)}, s.Values())
}

func TestSeriesWithLimit(t *testing.T) {
	s := NewSeries(WithLimit(2))
	defer s.Close()

	for i := uint64(1); i <= 5; i++ {
		assert.NoError(t, s.Append(ns(i)))
	}
	assert.Equal(t, []duration.Duration{ns(4), ns(5)}, s.Values())
	st := statsOf(t, s)
	assert.Equal(t, 5, st.Count)
	assert.Equal(t, ns(1), st.Min)
	assert.Equal(t, ns(5), st.Max)
	assert.Equal(t, ns(15), st.Total)
	assert.Equal(t, ns(3), st.Mean)
}

func TestSeriesStatsOverflow(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	upper := duration.Duration(math.MaxUint64)
	assert.NoError(t, s.Append(upper))
	assert.NoError(t, s.Append(upper-2))
	st := statsOf(t, s)
	assert.Equal(t, upper, st.Total)
	assert.Equal(t, upper-1, st.Mean)
	assert.Equal(t, upper-2, st.Min)
}

func TestSeriesReset(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	assert.NoError(t, s.Append(ns(5)))
	assert.NoError(t, s.Reset())
	assert.Empty(t, s.Values())
	assert.Equal(t, Stats{}, statsOf(t, s))
	assert.NoError(t, s.Append(ns(7)))
	assert.Equal(t, Stats{Count: 1, Total: ns(7), Min: ns(7), Max: ns(7), Mean: ns(7)}, statsOf(t, s))
}

func TestSeriesClose(t *testing.T) {
	s := NewSeries()
	assert.NoError(t, s.AppendAsync(ns(1)))
	assert.NoError(t, s.Close())

	assert.ErrorIs(t, s.Close(), ErrSeriesClosed)
	assert.ErrorIs(t, s.Append(ns(2)), ErrSeriesClosed)
	assert.ErrorIs(t, s.AppendAsync(ns(2)), ErrSeriesClosed)
	assert.ErrorIs(t, s.Reset(), ErrSeriesClosed)
	assert.Nil(t, s.Values())
	st, err := s.Stats()
	assert.ErrorIs(t, err, ErrSeriesClosed)
	assert.Equal(t, Stats{}, st)
}

func TestSeriesConcurrent(t *testing.T) {
	s := NewSeries(WithCapacity(4))
	defer s.Close()

	wg := sync.WaitGroup{}
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				assert.NoError(t, s.Append(ns(uint64(i))))
			}
		}(i)
	}
	wg.Wait()
	st := statsOf(t, s)
	assert.Equal(t, 800, st.Count)
	assert.Equal(t, ns(2800), st.Total)
	assert.Equal(t, ns(0), st.Min)
	assert.Equal(t, ns(7), st.Max)
}

func TestStatsLogObject(t *testing.T) {
	out := &bytes.Buffer{}
	st := Stats{Count: 2, Total: duration.MustParse("3s"), Min: duration.MustParse("1s"),
		Max: duration.MustParse("2s"), Mean: duration.MustParse("1s 500ms")}
	zerolog.New(out).Info().Object("stats", st).Msg("")
	assert.Contains(t, out.String(),
		`"stats":{"count":2,"total":"3s","min":"1s","max":"2s","mean":"1s 500ms"}`)
}

func TestWrap(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	calls := 0
	fn := Wrap(s, func() {
		calls++
		time.Sleep(time.Millisecond)
	})
	fn()
	fn()
	assert.Equal(t, 2, calls)
	values := s.Values()
	assert.Len(t, values, 2)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, duration.MustParse("1ms"))
	}
}

func TestWrapFunc(t *testing.T) {
	s := NewSeries()
	defer s.Close()

	fn := WrapFunc(s, func() string { return "result" })
	assert.Equal(t, "result", fn())
	assert.Equal(t, 1, statsOf(t, s).Count)

	/* closed series does not break the wrapped function */
	assert.NoError(t, s.Close())
	assert.Equal(t, "result", fn())
}
