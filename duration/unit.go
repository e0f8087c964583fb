package duration

import "strconv"

// Unit defines one of the fixed granularities of a duration
type Unit uint8

// Units ordered from the largest to the smallest
const (
	Year Unit = iota
	Day
	Hour
	Minute
	Second
	Millisecond
	Microsecond
	Nanosecond
)

const unitCount = int(Nanosecond) + 1

// Units lists all units in canonical order, largest first
var Units = [unitCount]Unit{Year, Day, Hour, Minute, Second, Millisecond, Microsecond, Nanosecond}

/* the single source of truth for both Parse and String:
suffixes are case-sensitive, h/m lowercase and Y/D uppercase on purpose */
var unitTable = [unitCount]struct {
	name   string
	suffix string
	wrap   uint64
	scale  uint64
}{
	Year:        {"Year", "Y", 0, 365 * 24 * 60 * 60 * 1000 * 1000 * 1000},
	Day:         {"Day", "D", 365, 24 * 60 * 60 * 1000 * 1000 * 1000},
	Hour:        {"Hour", "h", 24, 60 * 60 * 1000 * 1000 * 1000},
	Minute:      {"Minute", "m", 60, 60 * 1000 * 1000 * 1000},
	Second:      {"Second", "s", 60, 1000 * 1000 * 1000},
	Millisecond: {"Millisecond", "ms", 1000, 1000 * 1000},
	Microsecond: {"Microsecond", "µs", 1000, 1000},
	Nanosecond:  {"Nanosecond", "ns", 1000, 1},
}

// String returns the unit name
func (u Unit) String() string {
	if !u.valid() {
		return "Unit(" + strconv.Itoa(int(u)) + ")"
	}
	return unitTable[u].name
}

// Suffix returns the textual suffix used in the canonical form
func (u Unit) Suffix() string {
	if !u.valid() {
		return ""
	}
	return unitTable[u].suffix
}

// Wrap returns the count of the unit equal to one of the next larger unit,
// Year is unbounded and returns 0
func (u Unit) Wrap() uint64 {
	if !u.valid() {
		return 0
	}
	return unitTable[u].wrap
}

// Scale returns the unit size in nanoseconds
func (u Unit) Scale() uint64 {
	if !u.valid() {
		return 0
	}
	return unitTable[u].scale
}

// LookupSuffix returns the unit with exactly matching suffix
func LookupSuffix(suffix string) (Unit, bool) {
	for _, u := range Units {
		if unitTable[u].suffix == suffix {
			return u, true
		}
	}
	return 0, false
}

func (u Unit) valid() bool { return int(u) < unitCount }
