package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

// Node IDs.
const (
	NodeControls = "controls"
	NodeStatus   = "status"
	NodeRuntime  = "runtime"
)

// Property IDs.
const (
	PropHeatSetpoint  = "heatsetpoint"
	PropCoolSetpoint  = "coolsetpoint"
	PropSystemMode    = "systemmode"
	PropFanMode       = "fanmode"
	PropHold          = "hold"
	PropOverride      = "override"
	PropTemperature   = "temperature"
	PropSystemStatus  = "systemstatus"
	PropFanStatus     = "fanstatus"
	PropTodayHeat     = "todayheat"
	PropTodayCool     = "todaycool"
	PropYesterdayHeat = "yesterdayheat"
	PropYesterdayCool = "yesterdaycool"
)

// Setpoint limits in °F, also published as the setpoint $format.
const (
	SetpointMin = 55.0
	SetpointMax = 85.0
)

const (
	nodeType        = "thermostat"
	unitFahrenheit  = "F"
	setpointFormat  = "55:85"
	runtimeTemplate = "%d hrs, %d min"
)

// Device is the thermostat as seen by the bridge.
// Satisfied by *thermostat.Client.
type Device interface {
	Snapshot(ctx context.Context) (*thermostat.Snapshot, error)
	SetHeatSetpoint(ctx context.Context, degrees float64) error
	SetCoolSetpoint(ctx context.Context, degrees float64) error
	SetSystemMode(ctx context.Context, code int) error
	SetFanMode(ctx context.Context, code int) error
	SetHold(ctx context.Context, code int) error
}

// Tree is the property tree the bridge populates.
// Satisfied by *homie.Device.
type Tree interface {
	AddNode(id, name, nodeType string) (*homie.Node, error)
	SetCommandHandler(h homie.CommandHandler)
}

// Logger interface for optional logging support.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options holds the collaborators for creating a bridge.
type Options struct {
	// Device is the thermostat client.
	Device Device

	// Tree is the Homie device to populate.
	Tree Tree

	// EnumPolicy selects how command values are matched. Default lenient.
	EnumPolicy EnumPolicy

	// Logger is optional.
	Logger Logger

	// Metrics is optional.
	Metrics *Metrics
}

// Bridge keeps a thermostat and its Homie property tree in sync.
//
// Build declares the tree from an initial snapshot. After that, Refresh
// copies device state into the tree and HandleCommand copies /set writes into
// the device.
//
// Thread Safety: One mutex serialises every device call and property update,
// so a refresh and a command never interleave.
type Bridge struct {
	device  Device
	tree    Tree
	policy  EnumPolicy
	logger  Logger
	metrics *Metrics

	mu    sync.Mutex
	props map[string]*homie.Property // keyed by property ID
	built bool
}

// New creates a bridge. Call Build before starting the Homie device.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Tree == nil {
		return nil, fmt.Errorf("property tree is required")
	}
	policy, err := ParseEnumPolicy(string(opts.EnumPolicy))
	if err != nil {
		return nil, err
	}

	return &Bridge{
		device:  opts.Device,
		tree:    opts.Tree,
		policy:  policy,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		props:   make(map[string]*homie.Property),
	}, nil
}

// nodeSpec is one node of the schema.
type nodeSpec struct {
	id, name string
	props    []homie.PropertySpec
}

// Build reads one snapshot and declares the controls, status and runtime
// nodes with their initial values. Runtime values stay empty until the first
// Refresh.
//
// Any error is fatal for the bridge: the tree is incomplete. An enum reading
// outside its mapping fails with ErrUnknownEnumCode before any node is
// declared, since the property would otherwise start without a value.
func (b *Bridge) Build(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return nil
	}

	snap, err := b.device.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading initial snapshot: %w", err)
	}
	if err := checkEnums(snap); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	for _, node := range schema(snap) {
		n, err := b.tree.AddNode(node.id, node.name, nodeType)
		if err != nil {
			return fmt.Errorf("adding node %s: %w", node.id, err)
		}
		for _, spec := range node.props {
			p, err := n.AddProperty(spec)
			if err != nil {
				return fmt.Errorf("adding property %s/%s: %w", node.id, spec.ID, err)
			}
			b.props[spec.ID] = p
		}
	}

	b.tree.SetCommandHandler(b)
	b.built = true
	b.metrics.observeSnapshot(snap)

	b.logInfo("property tree built",
		"system_mode", snap.SystemMode.Human,
		"temperature", snap.Temperature.Raw)
	return nil
}

// checkEnums verifies every enum reading names a value in its mapping.
func checkEnums(snap *thermostat.Snapshot) error {
	readings := []struct {
		id string
		m  Mapping
		r  thermostat.Reading[int]
	}{
		{PropSystemMode, SystemModes, snap.SystemMode},
		{PropFanMode, FanModes, snap.FanMode},
		{PropHold, HoldModes, snap.Hold},
		{PropOverride, HoldModes, snap.Override},
	}
	for _, e := range readings {
		if !e.m.Contains(e.r.Human) {
			return fmt.Errorf("%w: %s code %d (%q)", ErrUnknownEnumCode, e.id, e.r.Raw, e.r.Human)
		}
	}
	return nil
}

// schema lays out the three nodes with values taken from snap. Enum readings
// have been checked by checkEnums.
func schema(snap *thermostat.Snapshot) []nodeSpec {
	return []nodeSpec{
		{
			id: NodeControls, name: "Controls",
			props: []homie.PropertySpec{
				{
					ID: PropHeatSetpoint, Name: "Heat Setpoint", Datatype: homie.DatatypeFloat,
					Format: setpointFormat, Unit: unitFahrenheit, Settable: true,
					Value: formatFloat(clampSetpoint(snap.HeatSetpoint.Raw)),
				},
				{
					ID: PropCoolSetpoint, Name: "Cool Setpoint", Datatype: homie.DatatypeFloat,
					Format: setpointFormat, Unit: unitFahrenheit, Settable: true,
					Value: formatFloat(clampSetpoint(snap.CoolSetpoint.Raw)),
				},
				{
					ID: PropSystemMode, Name: "System Mode", Datatype: homie.DatatypeEnum,
					Format: SystemModes.Format(), Settable: true,
					Value: snap.SystemMode.Human,
				},
				{
					ID: PropFanMode, Name: "Fan Mode", Datatype: homie.DatatypeEnum,
					Format: FanModes.Format(), Settable: true,
					Value: snap.FanMode.Human,
				},
				{
					ID: PropHold, Name: "Hold", Datatype: homie.DatatypeEnum,
					Format: HoldModes.Format(), Settable: true,
					Value: snap.Hold.Human,
				},
				{
					// Published read-only: the device API has no override write.
					ID: PropOverride, Name: "Override", Datatype: homie.DatatypeEnum,
					Format: HoldModes.Format(),
					Value:  snap.Override.Human,
				},
			},
		},
		{
			id: NodeStatus, name: "Status",
			props: []homie.PropertySpec{
				{
					ID: PropTemperature, Name: "Temperature", Datatype: homie.DatatypeFloat,
					Unit: unitFahrenheit, Value: formatFloat(snap.Temperature.Raw),
				},
				{ID: PropSystemStatus, Name: "System Status", Value: snap.SystemStatus.Human},
				{ID: PropFanStatus, Name: "Fan Status", Value: snap.FanStatus.Human},
			},
		},
		{
			id: NodeRuntime, name: "Runtime",
			props: []homie.PropertySpec{
				{ID: PropTodayHeat, Name: "Today Heat Runtime"},
				{ID: PropTodayCool, Name: "Today Cool Runtime"},
				{ID: PropYesterdayHeat, Name: "Yesterday Heat Runtime"},
				{ID: PropYesterdayCool, Name: "Yesterday Cool Runtime"},
			},
		},
	}
}

func clampSetpoint(v float64) float64 {
	return min(max(v, SetpointMin), SetpointMax)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRuntime(r thermostat.Runtime) string {
	return fmt.Sprintf(runtimeTemplate, r.Hour, r.Minute)
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}
