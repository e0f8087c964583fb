package schedule

import "fmt"

// Mode defines how a task repeats
type Mode string

const (
	// Once runs the task a single time after Delay
	Once Mode = "once"
	// AtFixedRate runs the task every Delay measured from the scheduled start
	AtFixedRate Mode = "at-fixed-rate"
	// WithFixedDelay runs the task Delay after the previous run completed
	WithFixedDelay Mode = "with-fixed-delay"
)

// ParseMode returns known mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Once, AtFixedRate, WithFixedDelay:
		return m, nil
	case "":
		return "", fmt.Errorf("%w: missing schedule", ErrConfig)
	default:
		return "", fmt.Errorf("%w: unknown schedule %q", ErrConfig, s)
	}
}

// MarshalText implements encoding.TextMarshaler interface
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m Mode) periodic() bool {
	return m == AtFixedRate || m == WithFixedDelay
}
