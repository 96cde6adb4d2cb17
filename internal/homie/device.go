package homie

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Homie convention constants.
const (
	// ConventionVersion is the $homie attribute value.
	ConventionVersion = "4.0.0"

	// Implementation is the $implementation attribute value.
	Implementation = "radiotherm-homie"

	maxQoS byte = 2
)

// Device lifecycle states ($state attribute).
const (
	StateInit         = "init"
	StateReady        = "ready"
	StateDisconnected = "disconnected"
	StateLost         = "lost"
)

// MQTTClient is the interface for MQTT operations.
// It is satisfied by an adapter around the infrastructure MQTT client and by
// test mocks.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// SubscribeCommands registers the handler for the device's /set filter.
	// A handler error marks the write as rejected; the client logs it.
	SubscribeCommands(filter string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger interface for optional logging support.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Command is a validated write received on a property's /set topic.
type Command struct {
	Node     string
	Property string
	Value    string
}

// CommandHandler applies property writes to the underlying hardware.
//
// The handler is responsible for publishing the resulting value (usually by
// calling Property.Set); the device never echoes /set payloads on its own.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) error
}

// Options holds configuration for creating a Device.
type Options struct {
	// ID is the device topic level. Must satisfy ValidID.
	ID string

	// Name is the $name attribute. Defaults to ID.
	Name string

	// BaseTopic is the Homie root. Defaults to "homie".
	BaseTopic string

	// Client publishes and subscribes.
	Client MQTTClient

	// QoS for every publish and the /set subscription. Zero is QoS 0.
	QoS byte

	// Logger is optional.
	Logger Logger
}

// Device is a Homie v4 device: the root of a node/property tree mirrored on
// MQTT.
//
// Build the tree with AddNode and Node.AddProperty, register a
// CommandHandler, then call Start. The tree is fixed once started.
//
// Thread Safety: All methods are safe for concurrent use.
type Device struct {
	id     string
	name   string
	topics Topics
	client MQTTClient
	qos    byte
	logger Logger

	mu      sync.RWMutex
	nodes   []*Node
	byID    map[string]*Node
	handler CommandHandler

	stateMu sync.RWMutex
	state   string
	started bool
	stopped bool

	// Cancelled on Stop so in-flight commands abort.
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New creates a device. Nothing is published until Start.
func New(opts Options) (*Device, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if !ValidID(opts.ID) {
		return nil, fmt.Errorf("%w: device %q", ErrInvalidID, opts.ID)
	}
	name := opts.Name
	if name == "" {
		name = opts.ID
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Device{
		id:        opts.ID,
		name:      name,
		topics:    NewTopics(opts.BaseTopic),
		client:    opts.Client,
		qos:       opts.QoS,
		logger:    opts.Logger,
		byID:      make(map[string]*Node),
		state:     StateInit,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// ID returns the device ID.
func (d *Device) ID() string { return d.id }

// Name returns the device $name.
func (d *Device) Name() string { return d.name }

// Topics returns the topic builder used by the device.
func (d *Device) Topics() Topics { return d.topics }

// State returns the last published $state.
func (d *Device) State() string {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state
}

// SetCommandHandler registers the handler that receives every /set.
func (d *Device) SetCommandHandler(h CommandHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// AddNode declares a node. Nodes must be added before Start.
//
// Parameters:
//   - id: Topic level, e.g. "controls"
//   - name: $name attribute
//   - nodeType: $type attribute
func (d *Device) AddNode(id, name, nodeType string) (*Node, error) {
	if d.isStarted() {
		return nil, ErrAlreadyStarted
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: node %q", ErrInvalidID, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byID[id]; exists {
		return nil, fmt.Errorf("%w: node %s", ErrDuplicateID, id)
	}
	n := &Node{
		device: d,
		id:     id,
		name:   name,
		typ:    nodeType,
		byID:   make(map[string]*Property),
	}
	d.nodes = append(d.nodes, n)
	d.byID[id] = n
	return n, nil
}

// Node returns a node by ID.
func (d *Device) Node(id string) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byID[id]
	return n, ok
}

// Nodes returns the nodes in declaration order.
func (d *Device) Nodes() []*Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Node(nil), d.nodes...)
}

// Property looks up a property by node and property ID.
func (d *Device) Property(nodeID, propertyID string) (*Property, error) {
	n, ok := d.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}
	p, ok := n.Property(propertyID)
	if !ok {
		return nil, fmt.Errorf("%w: property %s/%s", ErrNotFound, nodeID, propertyID)
	}
	return p, nil
}

// Start announces the device on MQTT.
//
// Sequence: $state=init, device/node/property attributes, current values,
// /set subscription, $state=ready.
func (d *Device) Start() error {
	d.stateMu.Lock()
	if d.started {
		d.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	d.stateMu.Unlock()

	if err := d.publishState(StateInit); err != nil {
		return err
	}
	if err := d.publishAttributes(); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.started = true
	d.stateMu.Unlock()

	for _, n := range d.Nodes() {
		for _, p := range n.Properties() {
			if _, err := p.flush(); err != nil {
				return fmt.Errorf("publishing %s/%s: %w", n.id, p.spec.ID, err)
			}
		}
	}

	setTopic := fmt.Sprintf("%s/+/+/%s", d.topics.Device(d.id), SetSuffix)
	if err := d.client.SubscribeCommands(setTopic, d.qos, d.handleSet); err != nil {
		return fmt.Errorf("subscribe to %s: %w", setTopic, err)
	}
	d.logDebug("subscribed to commands", "topic", setTopic)

	if err := d.publishState(StateReady); err != nil {
		return err
	}
	d.logInfo("homie device ready", "device_id", d.id, "nodes", len(d.Nodes()))
	return nil
}

// Republish re-announces $state=ready after a reconnect, replacing a
// "lost" Last Will the broker may have published meanwhile.
// It is a no-op before Start and after Stop.
func (d *Device) Republish() error {
	d.stateMu.RLock()
	live := d.started && !d.stopped
	d.stateMu.RUnlock()
	if !live {
		return nil
	}
	return d.publishState(StateReady)
}

// Stop publishes $state=disconnected and cancels in-flight commands.
// Safe to call multiple times.
func (d *Device) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.ctxCancel()

		d.stateMu.Lock()
		wasStarted := d.started
		d.stopped = true
		d.stateMu.Unlock()

		if wasStarted {
			err = d.publishState(StateDisconnected)
		}
		d.logInfo("homie device stopped", "device_id", d.id)
	})
	return err
}

// Values returns every property with its current value, in tree order.
func (d *Device) Values() []PropertyValue {
	var out []PropertyValue
	for _, n := range d.Nodes() {
		for _, p := range n.Properties() {
			v, ok := p.Value()
			out = append(out, PropertyValue{
				Node:     n.id,
				Property: p.spec.ID,
				Name:     p.spec.Name,
				Datatype: p.spec.Datatype,
				Format:   p.spec.Format,
				Unit:     p.spec.Unit,
				Settable: p.spec.Settable,
				Value:    v,
				HasValue: ok,
			})
		}
	}
	return out
}

// PropertyValue is a read-only view of one property.
type PropertyValue struct {
	Node     string   `json:"node"`
	Property string   `json:"property"`
	Name     string   `json:"name"`
	Datatype Datatype `json:"datatype"`
	Format   string   `json:"format,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Settable bool     `json:"settable"`
	Value    string   `json:"value"`
	HasValue bool     `json:"has_value"`
}

// handleSet routes an inbound /set message to the command handler. The
// returned error says why the write was rejected.
func (d *Device) handleSet(topic string, payload []byte) error {
	nodeID, propertyID, ok := d.topics.ParseSet(d.id, topic)
	if !ok {
		return fmt.Errorf("%w: unexpected command topic %s", ErrNotFound, topic)
	}

	p, err := d.Property(nodeID, propertyID)
	if err != nil {
		return err
	}
	if !p.spec.Settable {
		return fmt.Errorf("%w: %s/%s", ErrNotSettable, nodeID, propertyID)
	}

	value := string(payload)
	if err := p.Validate(value); err != nil {
		return err
	}

	d.mu.RLock()
	handler := d.handler
	d.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("no command handler for %s/%s", nodeID, propertyID)
	}

	d.logDebug("command received", "node", nodeID, "property", propertyID, "value", value)
	if err := handler.HandleCommand(d.ctx, Command{Node: nodeID, Property: propertyID, Value: value}); err != nil {
		return fmt.Errorf("%s/%s: %w", nodeID, propertyID, err)
	}
	return nil
}

func (d *Device) publishAttributes() error {
	nodes := d.Nodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.id
	}

	attrs := [][2]string{
		{"$homie", ConventionVersion},
		{"$name", d.name},
		{"$nodes", strings.Join(ids, ",")},
		{"$extensions", ""},
		{"$implementation", Implementation},
	}
	for _, a := range attrs {
		if err := d.publish(d.topics.DeviceAttribute(d.id, a[0]), a[1]); err != nil {
			return err
		}
	}

	for _, n := range nodes {
		nodeAttrs := [][2]string{
			{"$name", n.name},
			{"$type", n.typ},
			{"$properties", n.propertyIDs()},
		}
		for _, a := range nodeAttrs {
			if err := d.publish(d.topics.NodeAttribute(d.id, n.id, a[0]), a[1]); err != nil {
				return err
			}
		}
		for _, p := range n.Properties() {
			for _, a := range p.attributes() {
				if err := d.publish(d.topics.PropertyAttribute(d.id, n.id, p.spec.ID, a[0]), a[1]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *Device) publishState(state string) error {
	if err := d.publish(d.topics.State(d.id), state); err != nil {
		return err
	}
	d.stateMu.Lock()
	d.state = state
	d.stateMu.Unlock()
	return nil
}

// publish sends a retained message at the device QoS.
func (d *Device) publish(topic, payload string) error {
	if err := d.client.Publish(topic, []byte(payload), d.qos, true); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (d *Device) isStarted() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.started
}

func (d *Device) logDebug(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
}

func (d *Device) logInfo(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}
