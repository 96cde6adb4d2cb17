package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize caps a single publish. Homie values are short strings.
const maxPayloadSize = 1 << 16

// Publish sends payload to topic and waits for the broker's acknowledgement
// (for QoS above 0).
//
// The Homie device publishes every attribute and value retained so that a
// controller subscribing later sees the whole tree at once.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: empty publish topic", ErrInvalidTopic)
	case strings.ContainsAny(topic, "+#"):
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %s: %d byte payload exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: publish %s", ErrNotConnected, topic)
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
