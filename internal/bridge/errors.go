package bridge

import "errors"

// Domain errors for the thermostat bridge.
var (
	// ErrUnknownEnumValue is returned when a name is not in an enum mapping.
	ErrUnknownEnumValue = errors.New("bridge: unknown enum value")

	// ErrUnknownEnumCode is returned when a device code is not in an enum mapping.
	ErrUnknownEnumCode = errors.New("bridge: unknown enum code")

	// ErrInvalidEnumPolicy is returned for an unrecognised bridge.enum_policy.
	ErrInvalidEnumPolicy = errors.New("bridge: invalid enum policy")

	// ErrUnknownProperty is returned for a command on a property the bridge
	// does not manage.
	ErrUnknownProperty = errors.New("bridge: unknown property")

	// ErrReadOnlyProperty is returned for a command on a read-only property.
	ErrReadOnlyProperty = errors.New("bridge: property is read-only")

	// ErrInvalidSetpoint is returned when a setpoint command is not a number
	// within the allowed range.
	ErrInvalidSetpoint = errors.New("bridge: invalid setpoint")

	// ErrNotBuilt is returned when Refresh or HandleCommand runs before Build.
	ErrNotBuilt = errors.New("bridge: property tree not built")

	// ErrRefreshFailed is returned when the device snapshot cannot be read.
	ErrRefreshFailed = errors.New("bridge: refresh failed")

	// ErrPublishFailed is returned when a refresh read the device and stored
	// the new values but one or more could not be published. The stored
	// values go out with the next change or reconnect.
	ErrPublishFailed = errors.New("bridge: publish failed")

	// ErrDeviceWrite is returned when the device rejects or misses a command.
	// The new value has still been published.
	ErrDeviceWrite = errors.New("bridge: device write failed")
)
