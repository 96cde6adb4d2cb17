package thermostat

import "errors"

// Domain errors for the thermostat client.
var (
	// ErrDeviceUnreachable is returned when the HTTP request itself fails
	// (connection refused, timeout, reset).
	ErrDeviceUnreachable = errors.New("thermostat: device unreachable")

	// ErrUnexpectedStatus is returned for a non-200 HTTP status.
	ErrUnexpectedStatus = errors.New("thermostat: unexpected HTTP status")

	// ErrInvalidResponse is returned when a reply is not the expected JSON.
	ErrInvalidResponse = errors.New("thermostat: invalid response")

	// ErrMissingField is returned when a required field is absent from a reply.
	ErrMissingField = errors.New("thermostat: missing field")

	// ErrCommandRejected is returned when the device answers a write with an error.
	ErrCommandRejected = errors.New("thermostat: command rejected")

	// ErrDiscoveryFailed is returned when no thermostat answers SSDP discovery.
	ErrDiscoveryFailed = errors.New("thermostat: discovery failed")
)
