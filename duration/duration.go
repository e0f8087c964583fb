// Package duration provides the canonical human-readable form of elapsed time
// like "1D 10h 17m 36s" with the exact decoder for it.
//
// A Duration is a non-negative count of nanoseconds kept in uint64,
// so the supported range ends at math.MaxUint64 nanoseconds (about 584 years),
// anything beyond fails with ErrOverflow and never wraps.
package duration

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"time"
)

// define error types
var (
	ErrDuration = errors.New("duration error")
	ErrSyntax   = fmt.Errorf("%w: unrecognized duration syntax", ErrDuration)
	ErrOverflow = fmt.Errorf("%w: out of range", ErrDuration)
	ErrNegative = fmt.Errorf("%w: negative value", ErrDuration)
)

// Duration defines elapsed time with nanosecond precision
type Duration uint64

// Parse decodes the canonical form.
// Segments "<digits><suffix>" must follow the order of Units, each unit at most once,
// separated by a single space. The empty string is the zero duration.
func Parse(s string) (Duration, error) {
	var (
		total    uint64
		overflow bool
	)
	next, pos := 0, 0
	for pos < len(s) {
		if pos > 0 {
			if s[pos] != ' ' {
				return 0, syntaxError(s)
			}
			pos++
		}
		start := pos
		for pos < len(s) && '0' <= s[pos] && s[pos] <= '9' {
			pos++
		}
		if pos == start {
			return 0, syntaxError(s)
		}
		digits := s[start:pos]

		/* take the first remaining unit whose suffix ends the segment,
		so "5ms" is not read as minutes followed by garbage */
		found := -1
		for i := next; i < unitCount; i++ {
			sfx := unitTable[i].suffix
			end := pos + len(sfx)
			if end <= len(s) && s[pos:end] == sfx && (end == len(s) || s[end] == ' ') {
				found = i
				break
			}
		}
		if found < 0 {
			return 0, syntaxError(s)
		}

		/* the rest is still checked, a syntax error wins over overflow */
		if !overflow {
			overflow = !accumulate(&total, digits, unitTable[found].scale)
		}
		pos += len(unitTable[found].suffix)
		next = found + 1
	}
	if overflow {
		return 0, overflowError(s)
	}
	return Duration(total), nil
}

// accumulate adds digits*scale to total, false on overflow
func accumulate(total *uint64, digits string, scale uint64) bool {
	amount, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return false
	}
	hi, scaled := bits.Mul64(amount, scale)
	if hi != 0 {
		return false
	}
	sum, carry := bits.Add64(*total, scaled, 0)
	if carry != 0 {
		return false
	}
	*total = sum
	return true
}

// MustParse is like Parse but panics on error
func MustParse(s string) Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the canonical form: positive amounts only, largest unit first,
// joined by a single space. The zero duration is the empty string.
func (d Duration) String() string {
	if d == 0 {
		return ""
	}
	buf := make([]byte, 0, 32)
	for i, amount := range d.Amounts() {
		if amount == 0 {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendUint(buf, amount, 10)
		buf = append(buf, unitTable[i].suffix...)
	}
	return string(buf)
}

// Amounts returns the per-unit decomposition in order of Units.
// Every amount except Year is less than its unit wrap value.
func (d Duration) Amounts() [unitCount]uint64 {
	var amounts [unitCount]uint64
	rem := uint64(d)
	for i := unitCount - 1; i > 0; i-- {
		wrap := unitTable[i].wrap
		amounts[i] = rem % wrap
		rem /= wrap
	}
	amounts[Year] = rem
	return amounts
}

// Compose sums the amounts of units, amounts exceeding the wrap value carry over
func Compose(amounts map[Unit]uint64) (Duration, error) {
	var total Duration
	for _, u := range Units {
		n, ok := amounts[u]
		if !ok {
			continue
		}
		d, err := Of(n, u)
		if err != nil {
			return 0, err
		}
		if total, err = total.Add(d); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Nanoseconds returns duration of n nanoseconds
func Nanoseconds(n uint64) Duration {
	return Duration(n)
}

// Milliseconds returns duration of n milliseconds
func Milliseconds(n uint64) (Duration, error) {
	return Of(n, Millisecond)
}

// Of returns duration of n units
func Of(n uint64, u Unit) (Duration, error) {
	if !u.valid() {
		return 0, fmt.Errorf("%w: unknown unit %v", ErrDuration, u)
	}
	hi, lo := bits.Mul64(n, unitTable[u].scale)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d %v", ErrOverflow, n, u)
	}
	return Duration(lo), nil
}

// FromStd converts time.Duration
func FromStd(d time.Duration) (Duration, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: %v", ErrNegative, d)
	}
	return Duration(d), nil
}

// Since returns the elapsed time since t, relies on the monotonic clock reading of t
func Since(t time.Time) Duration {
	if d := time.Since(t); d > 0 {
		return Duration(d)
	}
	return 0
}

// Nanoseconds returns the count of nanoseconds
func (d Duration) Nanoseconds() uint64 { return uint64(d) }

// Milliseconds returns the count of whole milliseconds, the remainder is truncated
func (d Duration) Milliseconds() uint64 { return uint64(d) / unitTable[Millisecond].scale }

// Std converts into time.Duration
func (d Duration) Std() (time.Duration, error) {
	if uint64(d) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v exceeds time.Duration", ErrOverflow, d)
	}
	return time.Duration(d), nil
}

// Truncate drops all amounts smaller than u
func (d Duration) Truncate(u Unit) Duration {
	if !u.valid() {
		return d
	}
	scale := unitTable[u].scale
	return d - d%Duration(scale)
}

// IsZero checks for the zero duration
func (d Duration) IsZero() bool { return d == 0 }

// Compare returns -1, 0, or +1
func (d Duration) Compare(other Duration) int {
	switch {
	case d < other:
		return -1
	case d > other:
		return 1
	}
	return 0
}

// Add returns the sum
func (d Duration) Add(other Duration) (Duration, error) {
	sum, carry := bits.Add64(uint64(d), uint64(other), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d ns", ErrOverflow, uint64(d), uint64(other))
	}
	return Duration(sum), nil
}

// Sub returns the difference
func (d Duration) Sub(other Duration) (Duration, error) {
	if other > d {
		return 0, fmt.Errorf("%w: %d - %d ns", ErrNegative, uint64(d), uint64(other))
	}
	return d - other, nil
}

// Mul returns the product
func (d Duration) Mul(n uint64) (Duration, error) {
	hi, lo := bits.Mul64(uint64(d), n)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d ns", ErrOverflow, uint64(d), n)
	}
	return Duration(lo), nil
}

func syntaxError(s string) error {
	return fmt.Errorf("%w: %q", ErrSyntax, s)
}

func overflowError(s string) error {
	return fmt.Errorf("%w: %q", ErrOverflow, s)
}
