package mqtt

import "errors"

var (
	// ErrNotConnected means the broker connection is down; paho is
	// reconnecting in the background.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed means the first connection never completed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker-side publish failures and timeouts.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps failures subscribing the command route.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrRouteExists is returned when a second, different command filter is
	// registered.
	ErrRouteExists = errors.New("mqtt: command route already registered")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for empty, wildcarded publish topics and
	// malformed command filters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
