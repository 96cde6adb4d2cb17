package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// commandSuffix is the last level of every settable-property topic.
const commandSuffix = "/set"

// commandRoute is the single inbound subscription the bridge holds: the
// wildcard filter covering every settable property's /set topic.
type commandRoute struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// SubscribeCommands subscribes to the device's command filter, e.g.
// "homie/livingroom/+/+/set", and delivers each message to handler.
//
// The client holds one command route. Calling again with the same filter
// replaces the handler; a different filter is refused with ErrRouteExists.
// The route is re-subscribed after every reconnect because the session is
// clean.
//
// A handler error means the command was rejected. It is logged with the topic
// and payload; the broker is not told.
func (c *Client) SubscribeCommands(filter string, qos byte, handler MessageHandler) error {
	if err := validateCommandFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}

	c.routeMu.Lock()
	if c.route != nil && c.route.filter != filter {
		existing := c.route.filter
		c.routeMu.Unlock()
		return fmt.Errorf("%w: %s (have %s)", ErrRouteExists, filter, existing)
	}
	previous := c.route
	c.route = &commandRoute{filter: filter, qos: qos, handler: handler}
	c.routeMu.Unlock()

	if err := c.subscribeRoute(); err != nil {
		c.routeMu.Lock()
		c.route = previous
		c.routeMu.Unlock()
		return err
	}
	return nil
}

// validateCommandFilter accepts non-empty filters ending in /set whose
// wildcards occupy whole levels.
func validateCommandFilter(filter string) error {
	if !strings.HasSuffix(filter, commandSuffix) || len(filter) == len(commandSuffix) {
		return fmt.Errorf("%w: %q is not a /set filter", ErrInvalidTopic, filter)
	}
	for _, level := range strings.Split(filter, "/") {
		if level == "" || level == "#" || (strings.Contains(level, "+") && level != "+") {
			return fmt.Errorf("%w: bad level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// subscribeRoute sends the SUBSCRIBE for the current route, if any.
func (c *Client) subscribeRoute() error {
	c.routeMu.RLock()
	route := c.route
	c.routeMu.RUnlock()
	if route == nil {
		return nil
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(route.filter, route.qos, c.dispatch(route))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, route.filter, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, route.filter, err)
	}
	return nil
}

// restoreRoute re-subscribes the command route after a reconnect. paho runs
// the connect handler on its own goroutine, so waiting on the token is safe.
func (c *Client) restoreRoute() {
	if err := c.subscribeRoute(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("command subscription not restored, /set writes are ignored until next reconnect",
				"error", err)
		}
	}
}

// dispatch adapts route.handler to paho, containing panics and logging
// rejected commands.
func (c *Client) dispatch(route *commandRoute) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("command handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := route.handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("command rejected",
					"topic", msg.Topic(),
					"payload", string(msg.Payload()),
					"error", err,
				)
			}
		}
	}
}
