package duration

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Used by env parser as well.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler, null keeps the value
func (d *Duration) UnmarshalJSON(input []byte) error {
	if string(input) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrSyntax, input)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: expected scalar", ErrSyntax, value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Set implements pflag.Value
func (d *Duration) Set(s string) error {
	return d.UnmarshalText([]byte(s))
}

// Type implements pflag.Value
func (d *Duration) Type() string {
	return "duration"
}
