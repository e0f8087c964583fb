package sink

import (
	"time"

	"github.com/gwos/unit/duration"
	"github.com/rs/zerolog/log"
)

// Wrap returns fn which appends elapsed time of each invocation into series
func Wrap(s *Series, fn func()) func() {
	return func() {
		start := time.Now()
		defer func() { record(s, duration.Since(start)) }()
		fn()
	}
}

// WrapFunc is like Wrap for functions with result
func WrapFunc[T any](s *Series, fn func() T) func() T {
	return func() T {
		start := time.Now()
		defer func() { record(s, duration.Since(start)) }()
		return fn()
	}
}

func record(s *Series, d duration.Duration) {
	if err := s.Append(d); err != nil {
		log.Warn().Err(err).Str("elapsed", d.String()).Msg("could not record measurement")
	}
}
