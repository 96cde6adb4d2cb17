package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

// fakeRefresher records refresh calls and fails on demand.
type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	ctxs  []context.Context
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxs = append(f.ctxs, ctx)
	return f.err
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSchedulerState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "unknown", SchedulerState(9).String())
}

// fakeClock is a settable clock for the scheduler.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recordingLogger keeps warn messages.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// newClockedScheduler returns a scheduler whose refreshes complete at the
// clock's current time.
func newClockedScheduler(r Refresher, interval time.Duration, logger Logger) (*Scheduler, *fakeClock) {
	s := NewScheduler(r, interval, logger)
	clock := &fakeClock{}
	s.clock = clock.Now
	return s, clock
}

// tickAt ticks with the clock set to at, so the refresh completes instantly.
func tickAt(ctx context.Context, s *Scheduler, clock *fakeClock, at time.Time) bool {
	clock.Set(at)
	return s.tick(ctx, at)
}

func TestScheduler_FirstTickRefreshes(t *testing.T) {
	r := &fakeRefresher{}
	s, clock := newClockedScheduler(r, 5*time.Minute, nil)
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	assert.True(t, s.LastRun().IsZero())
	assert.True(t, tickAt(context.Background(), s, clock, t0))
	assert.Equal(t, 1, r.Calls())
	assert.Equal(t, t0, s.LastRun())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_Interval(t *testing.T) {
	r := &fakeRefresher{}
	s, clock := newClockedScheduler(r, 5*time.Minute, nil)
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tickAt(ctx, s, clock, t0)
	for sec := 1; sec < 300; sec++ {
		assert.False(t, tickAt(ctx, s, clock, t0.Add(time.Duration(sec)*time.Second)))
	}
	assert.True(t, tickAt(ctx, s, clock, t0.Add(300*time.Second)))
	assert.Equal(t, 2, r.Calls())
}

// slowRefresher advances the clock while refreshing, like a device that
// takes a while to answer.
type slowRefresher struct {
	clock *fakeClock
	takes time.Duration
}

func (r *slowRefresher) Refresh(context.Context) error {
	r.clock.Set(r.clock.Now().Add(r.takes))
	return nil
}

func TestScheduler_LastRunIsCompletionTime(t *testing.T) {
	r := &slowRefresher{takes: 40 * time.Second}
	s, clock := newClockedScheduler(r, 5*time.Minute, nil)
	r.clock = clock
	ctx := context.Background()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	require.True(t, tickAt(ctx, s, clock, t0))
	assert.Equal(t, t0.Add(40*time.Second), s.LastRun())

	// The interval counts from completion, not from the tick that started it.
	assert.False(t, tickAt(ctx, s, clock, t0.Add(300*time.Second)))
	assert.False(t, tickAt(ctx, s, clock, t0.Add(339*time.Second)))
	assert.True(t, tickAt(ctx, s, clock, t0.Add(340*time.Second)))
	assert.Equal(t, t0.Add(380*time.Second), s.LastRun())
}

func TestScheduler_FailedRefreshWaitsFullInterval(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	logger := &recordingLogger{}
	s, clock := newClockedScheduler(env.bridge, 5*time.Minute, logger)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	require.True(t, tickAt(ctx, s, clock, t0))
	atStart := env.tree.Values()

	// The device changes but is unreachable when the next poll is due.
	env.device.Update(func(snap *thermostat.Snapshot) {
		snap.Temperature = thermostat.Reading[float64]{Raw: 72, Human: "72"}
	})
	env.device.SetReadErr(thermostat.ErrDeviceUnreachable)
	require.True(t, tickAt(ctx, s, clock, t0.Add(300*time.Second)))
	assert.Equal(t, []string{"refresh failed, keeping previous values"}, logger.Warns())

	assert.False(t, tickAt(ctx, s, clock, t0.Add(301*time.Second)))
	assert.Equal(t, atStart, env.tree.Values())

	// No retry until a full interval after the failure.
	env.device.SetReadErr(nil)
	assert.False(t, tickAt(ctx, s, clock, t0.Add(599*time.Second)))
	require.True(t, tickAt(ctx, s, clock, t0.Add(600*time.Second)))

	p, err := env.tree.Property(NodeStatus, PropTemperature)
	require.NoError(t, err)
	v, _ := p.Value()
	assert.Equal(t, "72", v)
}

func TestScheduler_PublishFailureLoggedSeparately(t *testing.T) {
	env := startedEnv(t, EnumPolicyLenient)
	logger := &recordingLogger{}
	s, clock := newClockedScheduler(env.bridge, 5*time.Minute, logger)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	env.device.Update(func(snap *thermostat.Snapshot) {
		snap.Temperature = thermostat.Reading[float64]{Raw: 72, Human: "72"}
	})
	env.mqtt.SetPublishErr(errors.New("broker gone"))
	require.True(t, tickAt(ctx, s, clock, t0))

	assert.Equal(t, []string{"refresh read the device but some values were not published"}, logger.Warns())
	assert.Equal(t, t0, s.LastRun())
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	r := &fakeRefresher{err: errors.New("unreachable")}
	s := NewScheduler(r, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Calls() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, r.Calls())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_RefreshContextSurvivesCancel(t *testing.T) {
	r := &fakeRefresher{}
	s := NewScheduler(r, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Calls() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	r.mu.Lock()
	refreshCtx := r.ctxs[0]
	r.mu.Unlock()
	assert.NoError(t, refreshCtx.Err())
}

// Bridge satisfies the interfaces its collaborators expect.
var (
	_ Refresher            = (*Bridge)(nil)
	_ homie.CommandHandler = (*Bridge)(nil)
	_ Tree                 = (*homie.Device)(nil)
	_ Device               = (*thermostat.Client)(nil)
)
