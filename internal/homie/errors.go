package homie

import "errors"

// Domain errors for the Homie device tree.
var (
	// ErrInvalidID is returned when a device, node or property ID breaks the
	// Homie ID rules (lower-case a-z, 0-9 and hyphen).
	ErrInvalidID = errors.New("homie: invalid id")

	// ErrDuplicateID is returned when a node or property ID is already in use.
	ErrDuplicateID = errors.New("homie: duplicate id")

	// ErrAlreadyStarted is returned when the tree is modified after Start.
	ErrAlreadyStarted = errors.New("homie: device already started")

	// ErrNotFound is returned when a node or property does not exist.
	ErrNotFound = errors.New("homie: not found")

	// ErrInvalidFormat is returned for a property format that does not suit
	// its datatype (e.g. "85:55" on a float).
	ErrInvalidFormat = errors.New("homie: invalid format")

	// ErrInvalidValue is returned when a /set payload does not satisfy the
	// property's datatype and format.
	ErrInvalidValue = errors.New("homie: invalid value")

	// ErrNotSettable is returned when a /set arrives for a read-only property.
	ErrNotSettable = errors.New("homie: property not settable")
)
