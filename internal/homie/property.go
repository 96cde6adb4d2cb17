package homie

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Datatype is a Homie v4 property datatype.
type Datatype string

// Homie v4 datatypes.
const (
	DatatypeInteger Datatype = "integer"
	DatatypeFloat   Datatype = "float"
	DatatypeBoolean Datatype = "boolean"
	DatatypeString  Datatype = "string"
	DatatypeEnum    Datatype = "enum"
)

// PropertySpec declares a property before it is added to a node.
type PropertySpec struct {
	// ID is the topic level, e.g. "heatsetpoint".
	ID string

	// Name is the human-readable $name. Defaults to ID.
	Name string

	// Datatype is the $datatype attribute. Defaults to DatatypeString.
	Datatype Datatype

	// Format is the $format attribute: "min:max" for numbers, a comma
	// separated list for enums. Required for enums.
	Format string

	// Unit is the optional $unit attribute, e.g. "°F".
	Unit string

	// Settable subscribes the property's /set topic.
	Settable bool

	// Value is published on Start. A property with no value is published
	// the first time Set is called.
	Value string
}

// Property is a single Homie property: metadata plus the last value.
//
// Thread Safety: All methods are safe for concurrent use.
type Property struct {
	node *Node
	spec PropertySpec

	// Parsed from Format.
	enum     []string
	min, max float64
	hasRange bool

	mu        sync.Mutex
	value     string
	hasValue  bool
	published bool
}

// newProperty validates spec and parses its format.
func newProperty(node *Node, spec PropertySpec) (*Property, error) {
	if !ValidID(spec.ID) {
		return nil, fmt.Errorf("%w: property %q", ErrInvalidID, spec.ID)
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	if spec.Datatype == "" {
		spec.Datatype = DatatypeString
	}

	p := &Property{node: node, spec: spec}

	switch spec.Datatype {
	case DatatypeEnum:
		if spec.Format == "" {
			return nil, fmt.Errorf("%w: enum %q needs a format", ErrInvalidFormat, spec.ID)
		}
		p.enum = strings.Split(spec.Format, ",")
	case DatatypeFloat, DatatypeInteger:
		if spec.Format != "" {
			minV, maxV, err := parseRange(spec.Format)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFormat, spec.ID, err)
			}
			p.min, p.max, p.hasRange = minV, maxV, true
		}
	}

	if spec.Value != "" {
		p.value, p.hasValue = spec.Value, true
	}
	return p, nil
}

// parseRange parses a "min:max" format.
func parseRange(format string) (float64, float64, error) {
	lo, hi, found := strings.Cut(format, ":")
	if !found {
		return 0, 0, fmt.Errorf("range %q is not min:max", format)
	}
	minV, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range minimum %q: %w", lo, err)
	}
	maxV, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range maximum %q: %w", hi, err)
	}
	if minV > maxV {
		return 0, 0, fmt.Errorf("range %q is reversed", format)
	}
	return minV, maxV, nil
}

// ID returns the property ID.
func (p *Property) ID() string { return p.spec.ID }

// Spec returns the property declaration.
func (p *Property) Spec() PropertySpec { return p.spec }

// EnumValues returns the allowed values of an enum property, nil otherwise.
func (p *Property) EnumValues() []string {
	if p.enum == nil {
		return nil
	}
	return append([]string(nil), p.enum...)
}

// Value returns the last value and whether one has been set.
func (p *Property) Value() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.hasValue
}

// Set stores value and publishes it when the device is started.
// An unchanged value that has already been published is not re-sent.
//
// Returns:
//   - bool: true if the value was published
//   - error: Publish failure (the value is still stored)
func (p *Property) Set(value string) (bool, error) {
	p.mu.Lock()
	if p.hasValue && p.value == value && p.published {
		p.mu.Unlock()
		return false, nil
	}
	p.value, p.hasValue = value, true
	p.published = false
	p.mu.Unlock()

	return p.flush()
}

// flush publishes the stored value if the device is live.
func (p *Property) flush() (bool, error) {
	d := p.node.device
	if !d.isStarted() {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasValue {
		return false, nil
	}
	if err := d.publish(d.topics.Property(d.id, p.node.id, p.spec.ID), p.value); err != nil {
		return false, err
	}
	p.published = true
	return true, nil
}

// Validate checks an inbound /set payload against datatype and format.
//
// Enum membership is not checked here: the command handler decides how
// strictly to match enum values.
func (p *Property) Validate(value string) error {
	switch p.spec.Datatype {
	case DatatypeFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %q is not a float", ErrInvalidValue, p.spec.ID, value)
		}
		return p.checkRange(v)
	case DatatypeInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %q is not an integer", ErrInvalidValue, p.spec.ID, value)
		}
		return p.checkRange(float64(v))
	case DatatypeBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalidValue, p.spec.ID, value)
		}
	case DatatypeEnum:
		if value == "" {
			return fmt.Errorf("%w: %s: empty enum value", ErrInvalidValue, p.spec.ID)
		}
	}
	return nil
}

// IsEnumValue reports whether value is one of the declared enum values.
func (p *Property) IsEnumValue(value string) bool {
	for _, v := range p.enum {
		if v == value {
			return true
		}
	}
	return false
}

func (p *Property) checkRange(v float64) error {
	if p.hasRange && (v < p.min || v > p.max) {
		return fmt.Errorf("%w: %s: %v outside %s", ErrInvalidValue, p.spec.ID, v, p.spec.Format)
	}
	return nil
}

// attributes returns the property attributes in publish order.
func (p *Property) attributes() [][2]string {
	attrs := [][2]string{
		{"$name", p.spec.Name},
		{"$datatype", string(p.spec.Datatype)},
	}
	if p.spec.Format != "" {
		attrs = append(attrs, [2]string{"$format", p.spec.Format})
	}
	if p.spec.Unit != "" {
		attrs = append(attrs, [2]string{"$unit", p.spec.Unit})
	}
	attrs = append(attrs,
		[2]string{"$settable", strconv.FormatBool(p.spec.Settable)},
		[2]string{"$retained", "true"},
	)
	return attrs
}
