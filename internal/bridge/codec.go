package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Mapping is an immutable, ordered enum table: a value's position is its
// device code.
type Mapping struct {
	name   string
	values []string
}

// Device enum tables.
var (
	// SystemModes maps tmode codes.
	SystemModes = NewMapping("systemmode", "Off", "Heat", "Cool", "Auto")

	// FanModes maps fmode codes.
	FanModes = NewMapping("fanmode", "Auto", "Auto/Circulate", "On")

	// HoldModes maps hold and override codes.
	HoldModes = NewMapping("hold", "Disabled", "Enabled")
)

// NewMapping builds a mapping where values[i] is the name of code i.
func NewMapping(name string, values ...string) Mapping {
	return Mapping{name: name, values: append([]string(nil), values...)}
}

// Name identifies the mapping in errors and logs.
func (m Mapping) Name() string { return m.name }

// Values returns the names in code order.
func (m Mapping) Values() []string {
	return append([]string(nil), m.values...)
}

// Format returns the Homie enum $format ("Off,Heat,Cool,Auto").
func (m Mapping) Format() string {
	return strings.Join(m.values, ",")
}

// Contains reports whether human is one of the mapping's names.
func (m Mapping) Contains(human string) bool {
	_, err := m.Decode(human)
	return err == nil
}

// Decode returns the device code for an exact name match.
//
// Returns:
//   - int: Device code
//   - error: ErrUnknownEnumValue if human is not a name in the mapping
func (m Mapping) Decode(human string) (int, error) {
	for code, v := range m.values {
		if v == human {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownEnumValue, m.name, human)
}

// Encode returns the name for a device code.
//
// Returns:
//   - string: Human-readable name
//   - error: ErrUnknownEnumCode if code is outside the mapping
func (m Mapping) Encode(code int) (string, error) {
	if code < 0 || code >= len(m.values) {
		return "", fmt.Errorf("%w: %s %d", ErrUnknownEnumCode, m.name, code)
	}
	return m.values[code], nil
}

// EnumPolicy decides what happens to a command value that is not an exact
// enum name.
type EnumPolicy string

// Enum policies.
const (
	// EnumPolicyLenient also accepts a decimal device code ("2") when that
	// code exists in the mapping.
	EnumPolicyLenient EnumPolicy = "lenient"

	// EnumPolicyStrict accepts exact names only.
	EnumPolicyStrict EnumPolicy = "strict"
)

// ParseEnumPolicy converts a config string. Empty selects lenient.
func ParseEnumPolicy(s string) (EnumPolicy, error) {
	switch EnumPolicy(s) {
	case "", EnumPolicyLenient:
		return EnumPolicyLenient, nil
	case EnumPolicyStrict:
		return EnumPolicyStrict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEnumPolicy, s)
	}
}

// Resolve turns a command value into a device code and the canonical name
// to publish.
func (p EnumPolicy) Resolve(m Mapping, value string) (int, string, error) {
	code, err := m.Decode(value)
	if err == nil {
		return code, value, nil
	}
	if p != EnumPolicyLenient {
		return 0, "", err
	}

	n, perr := strconv.Atoi(strings.TrimSpace(value))
	if perr != nil {
		return 0, "", err
	}
	name, eerr := m.Encode(n)
	if eerr != nil {
		return 0, "", fmt.Errorf("%w: %w", err, eerr)
	}
	return n, name, nil
}
