package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

// MockMQTTClient implements homie.MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  map[string][]string
	filter     string
	handler    func(topic string, payload []byte) error
	publishErr error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{published: make(map[string][]string)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published[topic] = append(m.published[topic], string(payload))
	return nil
}

func (m *MockMQTTClient) SubscribeCommands(filter string, _ byte, handler func(topic string, payload []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = filter
	m.handler = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	return true
}

// SetPublishErr makes every later publish fail with err (nil clears it).
func (m *MockMQTTClient) SetPublishErr(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// Deliver hands a /set message to the command handler as the broker would.
func (m *MockMQTTClient) Deliver(topic, payload string) error {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return errors.New("no command subscription")
	}
	return handler(topic, []byte(payload))
}

// Count returns how many times topic was published.
func (m *MockMQTTClient) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published[topic])
}

// MockDevice implements Device for testing.
type MockDevice struct {
	mu       sync.Mutex
	snap     thermostat.Snapshot
	readErr  error
	writeErr error
	reads    int
	writes   []mockWrite
}

type mockWrite struct {
	Field string
	Value float64
}

func NewMockDevice() *MockDevice {
	return &MockDevice{snap: baseSnapshot()}
}

// baseSnapshot is scenario A's device state.
func baseSnapshot() thermostat.Snapshot {
	return thermostat.Snapshot{
		HeatSetpoint: thermostat.Reading[float64]{Raw: 68, Human: "68"},
		CoolSetpoint: thermostat.Reading[float64]{Raw: 78, Human: "78"},
		SystemMode:   thermostat.Reading[int]{Raw: 1, Human: "Heat"},
		FanMode:      thermostat.Reading[int]{Raw: 0, Human: "Auto"},
		Hold:         thermostat.Reading[int]{Raw: 0, Human: "Disabled"},
		Override:     thermostat.Reading[int]{Raw: 0, Human: "Disabled"},
		Temperature:  thermostat.Reading[float64]{Raw: 70, Human: "70"},
		SystemStatus: thermostat.Reading[int]{Raw: 1, Human: "Heat"},
		FanStatus:    thermostat.Reading[int]{Raw: 0, Human: "Off"},
		Runtime: thermostat.Datalog{
			Today: thermostat.DayLog{
				Heat: thermostat.Runtime{Hour: 2, Minute: 15},
				Cool: thermostat.Runtime{Hour: 0, Minute: 0},
			},
			Yesterday: thermostat.DayLog{
				Heat: thermostat.Runtime{Hour: 5, Minute: 3},
				Cool: thermostat.Runtime{Hour: 0, Minute: 40},
			},
		},
	}
}

func (d *MockDevice) Snapshot(_ context.Context) (*thermostat.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return nil, d.readErr
	}
	snap := d.snap
	return &snap, nil
}

func (d *MockDevice) record(field string, v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.writes = append(d.writes, mockWrite{Field: field, Value: v})
	return nil
}

func (d *MockDevice) SetHeatSetpoint(_ context.Context, v float64) error {
	return d.record("t_heat", v)
}

func (d *MockDevice) SetCoolSetpoint(_ context.Context, v float64) error {
	return d.record("t_cool", v)
}

func (d *MockDevice) SetSystemMode(_ context.Context, code int) error {
	return d.record("tmode", float64(code))
}

func (d *MockDevice) SetFanMode(_ context.Context, code int) error {
	return d.record("fmode", float64(code))
}

func (d *MockDevice) SetHold(_ context.Context, code int) error {
	return d.record("hold", float64(code))
}

func (d *MockDevice) Update(fn func(s *thermostat.Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.snap)
}

func (d *MockDevice) SetReadErr(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
}

func (d *MockDevice) SetWriteErr(err error) {
	d.mu.Lock()
	d.writeErr = err
	d.mu.Unlock()
}

func (d *MockDevice) Writes() []mockWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mockWrite(nil), d.writes...)
}

type testEnv struct {
	bridge  *Bridge
	device  *MockDevice
	tree    *homie.Device
	mqtt    *MockMQTTClient
	metrics *Metrics
}

func newTestEnv(t *testing.T, policy EnumPolicy) *testEnv {
	t.Helper()
	env := &testEnv{device: NewMockDevice(), mqtt: NewMockMQTTClient()}

	tree, err := homie.New(homie.Options{ID: "livingroom", Name: "Living Room", Client: env.mqtt})
	require.NoError(t, err)
	env.tree = tree
	env.metrics = NewMetrics(prometheus.NewRegistry())

	b, err := New(Options{
		Device:     env.device,
		Tree:       tree,
		EnumPolicy: policy,
		Metrics:    env.metrics,
	})
	require.NoError(t, err)
	env.bridge = b
	return env
}

// startedEnv builds the tree and starts the Homie device.
func startedEnv(t *testing.T, policy EnumPolicy) *testEnv {
	t.Helper()
	env := newTestEnv(t, policy)
	require.NoError(t, env.bridge.Build(context.Background()))
	require.NoError(t, env.tree.Start())
	return env
}

func (e *testEnv) value(t *testing.T, node, prop string) string {
	t.Helper()
	p, err := e.tree.Property(node, prop)
	require.NoError(t, err)
	v, _ := p.Value()
	return v
}

func TestNew_Validation(t *testing.T) {
	tree, err := homie.New(homie.Options{ID: "x", Client: NewMockMQTTClient()})
	require.NoError(t, err)

	_, err = New(Options{Tree: tree})
	assert.Error(t, err)

	_, err = New(Options{Device: NewMockDevice()})
	assert.Error(t, err)

	_, err = New(Options{Device: NewMockDevice(), Tree: tree, EnumPolicy: "fuzzy"})
	assert.ErrorIs(t, err, ErrInvalidEnumPolicy)
}

func TestBuild_SchemaFromSnapshot(t *testing.T) {
	env := newTestEnv(t, EnumPolicyLenient)
	require.NoError(t, env.bridge.Build(context.Background()))

	assert.Equal(t, "Heat", env.value(t, NodeControls, PropSystemMode))
	assert.Equal(t, "Auto", env.value(t, NodeControls, PropFanMode))
	assert.Equal(t, "Disabled", env.value(t, NodeControls, PropHold))
	assert.Equal(t, "Disabled", env.value(t, NodeControls, PropOverride))
	assert.Equal(t, "68", env.value(t, NodeControls, PropHeatSetpoint))
	assert.Equal(t, "78", env.value(t, NodeControls, PropCoolSetpoint))
	assert.Equal(t, "70", env.value(t, NodeStatus, PropTemperature))
	assert.Equal(t, "", env.value(t, NodeRuntime, PropTodayHeat))

	var ids []string
	for _, n := range env.tree.Nodes() {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []string{NodeControls, NodeStatus, NodeRuntime}, ids)

	heat, err := env.tree.Property(NodeControls, PropHeatSetpoint)
	require.NoError(t, err)
	assert.Equal(t, homie.DatatypeFloat, heat.Spec().Datatype)
	assert.Equal(t, "55:85", heat.Spec().Format)
	assert.Equal(t, "F", heat.Spec().Unit)
	assert.True(t, heat.Spec().Settable)

	mode, err := env.tree.Property(NodeControls, PropSystemMode)
	require.NoError(t, err)
	assert.Equal(t, []string{"Off", "Heat", "Cool", "Auto"}, mode.EnumValues())

	override, err := env.tree.Property(NodeControls, PropOverride)
	require.NoError(t, err)
	assert.False(t, override.Spec().Settable)
}

func TestBuild_SnapshotError(t *testing.T) {
	env := newTestEnv(t, EnumPolicyLenient)
	env.device.SetReadErr(thermostat.ErrDeviceUnreachable)

	err := env.bridge.Build(context.Background())
	assert.ErrorIs(t, err, thermostat.ErrDeviceUnreachable)
	assert.Empty(t, env.tree.Nodes())
}

func TestBuild_UnknownEnumCode(t *testing.T) {
	env := newTestEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		s.SystemMode = thermostat.Reading[int]{Raw: 7, Human: "7"}
	})

	err := env.bridge.Build(context.Background())
	require.ErrorIs(t, err, ErrUnknownEnumCode)
	assert.Contains(t, err.Error(), "systemmode code 7")
	assert.Empty(t, env.tree.Nodes())
	assert.ErrorIs(t, env.bridge.Refresh(context.Background()), ErrNotBuilt)
}

func TestBuild_TreeAlreadyStarted(t *testing.T) {
	env := newTestEnv(t, EnumPolicyLenient)
	require.NoError(t, env.tree.Start())

	err := env.bridge.Build(context.Background())
	assert.ErrorIs(t, err, homie.ErrAlreadyStarted)
}

func TestRefresh_BeforeBuild(t *testing.T) {
	env := newTestEnv(t, EnumPolicyLenient)
	assert.ErrorIs(t, env.bridge.Refresh(context.Background()), ErrNotBuilt)
	assert.ErrorIs(t, env.bridge.HandleCommand(context.Background(), homie.Command{Property: PropHold, Value: "Enabled"}), ErrNotBuilt)
}

func TestRefresh_RuntimeFormatting(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)

	require.NoError(t, env.bridge.Refresh(context.Background()))

	assert.Equal(t, "2 hrs, 15 min", env.value(t, NodeRuntime, PropTodayHeat))
	assert.Equal(t, "0 hrs, 0 min", env.value(t, NodeRuntime, PropTodayCool))
	assert.Equal(t, "5 hrs, 3 min", env.value(t, NodeRuntime, PropYesterdayHeat))
	assert.Equal(t, "0 hrs, 40 min", env.value(t, NodeRuntime, PropYesterdayCool))
	assert.Equal(t, "Heat", env.value(t, NodeStatus, PropSystemStatus))
	assert.Equal(t, "Off", env.value(t, NodeStatus, PropFanStatus))
}

func TestRefresh_CopiesDeviceState(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		s.SystemMode = thermostat.Reading[int]{Raw: 2, Human: "Cool"}
		s.FanMode = thermostat.Reading[int]{Raw: 2, Human: "On"}
		s.Hold = thermostat.Reading[int]{Raw: 1, Human: "Enabled"}
		s.Temperature = thermostat.Reading[float64]{Raw: 74.5, Human: "74.5"}
		s.CoolSetpoint = thermostat.Reading[float64]{Raw: 75, Human: "75"}
	})

	require.NoError(t, env.bridge.Refresh(context.Background()))

	assert.Equal(t, "Cool", env.value(t, NodeControls, PropSystemMode))
	assert.Equal(t, "On", env.value(t, NodeControls, PropFanMode))
	assert.Equal(t, "Enabled", env.value(t, NodeControls, PropHold))
	assert.Equal(t, "74.5", env.value(t, NodeStatus, PropTemperature))
	assert.Equal(t, "75", env.value(t, NodeControls, PropCoolSetpoint))
}

func TestRefresh_Idempotent(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	ctx := context.Background()

	require.NoError(t, env.bridge.Refresh(ctx))
	before := env.tree.Values()
	topic := env.tree.Topics().Property("livingroom", NodeStatus, PropTemperature)
	count := env.mqtt.Count(topic)

	require.NoError(t, env.bridge.Refresh(ctx))
	assert.Equal(t, before, env.tree.Values())
	assert.Equal(t, count, env.mqtt.Count(topic), "unchanged value republished")
}

func TestRefresh_EnumMembership(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		// Unknown codes come back as their decimal string.
		s.SystemMode = thermostat.Reading[int]{Raw: 7, Human: "7"}
		s.FanMode = thermostat.Reading[int]{Raw: 9, Human: "9"}
		s.Override = thermostat.Reading[int]{Raw: 1, Human: "Enabled"}
	})

	require.NoError(t, env.bridge.Refresh(context.Background()))

	for _, pv := range env.tree.Values() {
		if pv.Datatype != homie.DatatypeEnum {
			continue
		}
		p, err := env.tree.Property(pv.Node, pv.Property)
		require.NoError(t, err)
		assert.True(t, p.IsEnumValue(pv.Value), "%s=%q", pv.Property, pv.Value)
	}
	assert.Equal(t, "Heat", env.value(t, NodeControls, PropSystemMode))
	assert.Equal(t, "Auto", env.value(t, NodeControls, PropFanMode))
	assert.Equal(t, "Enabled", env.value(t, NodeControls, PropOverride))
}

func TestRefresh_SetpointRange(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		s.HeatSetpoint = thermostat.Reading[float64]{Raw: 40, Human: "40"}
		s.CoolSetpoint = thermostat.Reading[float64]{Raw: 95, Human: "95"}
	})

	require.NoError(t, env.bridge.Refresh(context.Background()))

	assert.Equal(t, "55", env.value(t, NodeControls, PropHeatSetpoint))
	assert.Equal(t, "85", env.value(t, NodeControls, PropCoolSetpoint))
}

func TestRefresh_ReadFailureKeepsValues(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	ctx := context.Background()
	require.NoError(t, env.bridge.Refresh(ctx))
	before := env.tree.Values()

	env.device.Update(func(s *thermostat.Snapshot) {
		s.SystemMode = thermostat.Reading[int]{Raw: 3, Human: "Auto"}
	})
	env.device.SetReadErr(thermostat.ErrDeviceUnreachable)

	err := env.bridge.Refresh(ctx)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, thermostat.ErrDeviceUnreachable)
	assert.Equal(t, before, env.tree.Values())

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.refreshes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.refreshes.WithLabelValues("success")))
}

func TestHandleCommand_SystemMode(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)

	err := env.bridge.HandleCommand(context.Background(), homie.Command{
		Node: NodeControls, Property: PropSystemMode, Value: "Cool",
	})
	require.NoError(t, err)

	assert.Equal(t, []mockWrite{{Field: "tmode", Value: 2}}, env.device.Writes())
	assert.Equal(t, "Cool", env.value(t, NodeControls, PropSystemMode))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.commands.WithLabelValues(PropSystemMode, "success")))
}

func TestHandleCommand_HeatSetpoint(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		s.HeatSetpoint = thermostat.Reading[float64]{Raw: 65, Human: "65"}
	})
	require.NoError(t, env.bridge.Refresh(context.Background()))

	err := env.bridge.HandleCommand(context.Background(), homie.Command{
		Node: NodeControls, Property: PropHeatSetpoint, Value: "68",
	})
	require.NoError(t, err)

	assert.Equal(t, []mockWrite{{Field: "t_heat", Value: 68}}, env.device.Writes())
	assert.Equal(t, "68", env.value(t, NodeControls, PropHeatSetpoint))
}

func TestHandleCommand_Enums(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	ctx := context.Background()

	require.NoError(t, env.bridge.HandleCommand(ctx, homie.Command{Node: NodeControls, Property: PropFanMode, Value: "Auto/Circulate"}))
	require.NoError(t, env.bridge.HandleCommand(ctx, homie.Command{Node: NodeControls, Property: PropHold, Value: "Enabled"}))
	require.NoError(t, env.bridge.HandleCommand(ctx, homie.Command{Node: NodeControls, Property: PropCoolSetpoint, Value: "76.5"}))

	assert.Equal(t, []mockWrite{
		{Field: "fmode", Value: 1},
		{Field: "hold", Value: 1},
		{Field: "t_cool", Value: 76.5},
	}, env.device.Writes())
	assert.Equal(t, "Auto/Circulate", env.value(t, NodeControls, PropFanMode))
	assert.Equal(t, "Enabled", env.value(t, NodeControls, PropHold))
	assert.Equal(t, "76.5", env.value(t, NodeControls, PropCoolSetpoint))
}

func TestHandleCommand_LenientCode(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)

	require.NoError(t, env.bridge.HandleCommand(context.Background(), homie.Command{
		Node: NodeControls, Property: PropSystemMode, Value: "3",
	}))

	assert.Equal(t, []mockWrite{{Field: "tmode", Value: 3}}, env.device.Writes())
	assert.Equal(t, "Auto", env.value(t, NodeControls, PropSystemMode))
}

func TestHandleCommand_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		policy  EnumPolicy
		cmd     homie.Command
		wantErr error
	}{
		{"unknown name", EnumPolicyLenient, homie.Command{Property: PropSystemMode, Value: "Emergency"}, ErrUnknownEnumValue},
		{"code under strict", EnumPolicyStrict, homie.Command{Property: PropSystemMode, Value: "2"}, ErrUnknownEnumValue},
		{"code out of range", EnumPolicyLenient, homie.Command{Property: PropFanMode, Value: "5"}, ErrUnknownEnumCode},
		{"override", EnumPolicyLenient, homie.Command{Property: PropOverride, Value: "Enabled"}, ErrReadOnlyProperty},
		{"status", EnumPolicyLenient, homie.Command{Property: PropTemperature, Value: "70"}, ErrUnknownProperty},
		{"setpoint too high", EnumPolicyLenient, homie.Command{Property: PropHeatSetpoint, Value: "90"}, ErrInvalidSetpoint},
		{"setpoint not number", EnumPolicyLenient, homie.Command{Property: PropCoolSetpoint, Value: "cold"}, ErrInvalidSetpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startedEnv(t, tt.policy)
			before := env.tree.Values()

			err := env.bridge.HandleCommand(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.device.Writes())
			assert.Equal(t, before, env.tree.Values())
		})
	}
}

func TestHandleCommand_WriteFailureStillEchoes(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.SetWriteErr(thermostat.ErrCommandRejected)

	err := env.bridge.HandleCommand(context.Background(), homie.Command{
		Node: NodeControls, Property: PropSystemMode, Value: "Off",
	})
	assert.ErrorIs(t, err, ErrDeviceWrite)
	assert.ErrorIs(t, err, thermostat.ErrCommandRejected)
	assert.Equal(t, "Off", env.value(t, NodeControls, PropSystemMode))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.commands.WithLabelValues(PropSystemMode, "error")))

	// The next refresh restores the device's actual state.
	require.NoError(t, env.bridge.Refresh(context.Background()))
	assert.Equal(t, "Heat", env.value(t, NodeControls, PropSystemMode))
}

func TestHandleCommand_DoesNotRefresh(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	reads := env.device.reads

	require.NoError(t, env.bridge.HandleCommand(context.Background(), homie.Command{
		Node: NodeControls, Property: PropHold, Value: "Enabled",
	}))
	assert.Equal(t, reads, env.device.reads)
}

func TestHandleCommand_ViaMQTT(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	assert.Equal(t, "homie/livingroom/+/+/set", env.mqtt.filter)

	require.NoError(t, env.mqtt.Deliver("homie/livingroom/controls/systemmode/set", "Cool"))

	assert.Equal(t, []mockWrite{{Field: "tmode", Value: 2}}, env.device.Writes())
	assert.Equal(t, "Cool", env.value(t, NodeControls, PropSystemMode))

	err := env.mqtt.Deliver("homie/livingroom/controls/systemmode/set", "Warm")
	assert.ErrorIs(t, err, ErrUnknownEnumValue)
	assert.Equal(t, "Cool", env.value(t, NodeControls, PropSystemMode))
}

// Refreshes, /set commands and tree reads all run at once the way the
// scheduler, paho and the status API do. Run with -race.
func TestBridge_ConcurrentRefreshCommandsAndReads(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	ctx := context.Background()
	const rounds = 50

	enumProps := map[string]*homie.Property{}
	for _, id := range []string{PropSystemMode, PropFanMode, PropHold, PropOverride} {
		p, err := env.tree.Property(NodeControls, id)
		require.NoError(t, err)
		enumProps[id] = p
	}
	checkEnums := func(values []homie.PropertyValue) {
		for _, pv := range values {
			if p, ok := enumProps[pv.Property]; ok {
				assert.True(t, p.IsEnumValue(pv.Value), "%s=%q", pv.Property, pv.Value)
			}
		}
	}

	modes := []thermostat.Reading[int]{
		{Raw: 0, Human: "Off"},
		{Raw: 3, Human: "Auto"},
		{Raw: 7, Human: "7"},
	}
	commands := []string{"Cool", "Heat", "2", "Warm", "Off"}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			env.device.Update(func(s *thermostat.Snapshot) {
				s.SystemMode = modes[i%len(modes)]
			})
			_ = env.bridge.Refresh(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = env.mqtt.Deliver("homie/livingroom/controls/systemmode/set", commands[i%len(commands)])
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = env.mqtt.Deliver("homie/livingroom/controls/fanmode/set", []string{"On", "Auto", "9"}[i%3])
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			checkEnums(env.tree.Values())
		}
	}()
	wg.Wait()

	checkEnums(env.tree.Values())
}

func TestRefresh_PublishFailureKeepsValues(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	env.device.Update(func(s *thermostat.Snapshot) {
		s.Temperature = thermostat.Reading[float64]{Raw: 72, Human: "72"}
	})
	env.mqtt.SetPublishErr(errors.New("broker gone"))

	err := env.bridge.Refresh(context.Background())
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.NotErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, "72", env.value(t, NodeStatus, PropTemperature))
}

func TestMetrics_ObserveSnapshot(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	require.NoError(t, env.bridge.Refresh(context.Background()))

	assert.Equal(t, 70.0, testutil.ToFloat64(env.metrics.temperature))
	assert.Equal(t, 68.0, testutil.ToFloat64(env.metrics.setpoint.WithLabelValues("heat")))
	assert.Equal(t, 135.0, testutil.ToFloat64(env.metrics.runtime.WithLabelValues("today", "heat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.mode.WithLabelValues("tmode")))
	assert.Greater(t, testutil.ToFloat64(env.metrics.lastRefresh), 0.0)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.refreshSucceeded()
		m.refreshFailed()
		m.commandHandled("hold", errors.New("x"))
		m.observeSnapshot(&thermostat.Snapshot{})
	})
}
