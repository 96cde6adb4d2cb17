package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/thermostat"
)

// Refresh reads the thermostat and publishes any values that changed.
//
// A failed read leaves every property untouched. Enum readings outside the
// declared set are skipped, and setpoints are clamped to the published range.
//
// Returns:
//   - error: ErrRefreshFailed on a device read error (nothing stored), or
//     ErrPublishFailed wrapping the publish errors (values stored)
func (b *Bridge) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.built {
		return ErrNotBuilt
	}

	snap, err := b.device.Snapshot(ctx)
	if err != nil {
		b.metrics.refreshFailed()
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	var errs []error
	set := func(id, value string) {
		if err := b.setLocked(id, value); err != nil {
			errs = append(errs, err)
		}
	}
	setEnum := func(id string, m Mapping, r thermostat.Reading[int]) {
		if !m.Contains(r.Human) {
			b.logWarn("device reported value outside enum, keeping previous",
				"property", id,
				"code", r.Raw,
				"value", r.Human)
			return
		}
		set(id, r.Human)
	}
	setSetpoint := func(id string, raw float64) {
		v := clampSetpoint(raw)
		if v != raw {
			b.logWarn("setpoint outside range, clamping",
				"property", id,
				"reported", raw,
				"published", v)
		}
		set(id, formatFloat(v))
	}

	set(PropTemperature, formatFloat(snap.Temperature.Raw))
	set(PropSystemStatus, snap.SystemStatus.Human)
	set(PropFanStatus, snap.FanStatus.Human)
	setEnum(PropHold, HoldModes, snap.Hold)
	setEnum(PropOverride, HoldModes, snap.Override)
	setEnum(PropFanMode, FanModes, snap.FanMode)
	setEnum(PropSystemMode, SystemModes, snap.SystemMode)
	setSetpoint(PropHeatSetpoint, snap.HeatSetpoint.Raw)
	setSetpoint(PropCoolSetpoint, snap.CoolSetpoint.Raw)
	set(PropTodayHeat, formatRuntime(snap.Runtime.Today.Heat))
	set(PropTodayCool, formatRuntime(snap.Runtime.Today.Cool))
	set(PropYesterdayHeat, formatRuntime(snap.Runtime.Yesterday.Heat))
	set(PropYesterdayCool, formatRuntime(snap.Runtime.Yesterday.Cool))

	b.metrics.refreshSucceeded()
	b.metrics.observeSnapshot(snap)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPublishFailed, errors.Join(errs...))
	}
	b.logDebug("refreshed from device", "temperature", snap.Temperature.Raw)
	return nil
}

// HandleCommand applies a /set write to the thermostat and publishes the new
// value. It implements homie.CommandHandler.
//
// The echo is optimistic: when the device write fails the value is published
// anyway and ErrDeviceWrite is returned. The next Refresh publishes the
// device's actual state, so a failed write is visible for at most one poll
// interval.
//
// No refresh is triggered by a command.
func (b *Bridge) HandleCommand(ctx context.Context, cmd homie.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.built {
		return ErrNotBuilt
	}

	err := b.applyLocked(ctx, cmd)
	b.metrics.commandHandled(cmd.Property, err)
	return err
}

func (b *Bridge) applyLocked(ctx context.Context, cmd homie.Command) error {
	switch cmd.Property {
	case PropHeatSetpoint:
		return b.applySetpoint(ctx, cmd, b.device.SetHeatSetpoint)
	case PropCoolSetpoint:
		return b.applySetpoint(ctx, cmd, b.device.SetCoolSetpoint)
	case PropSystemMode:
		return b.applyEnum(ctx, cmd, SystemModes, b.device.SetSystemMode)
	case PropFanMode:
		return b.applyEnum(ctx, cmd, FanModes, b.device.SetFanMode)
	case PropHold:
		return b.applyEnum(ctx, cmd, HoldModes, b.device.SetHold)
	case PropOverride:
		return fmt.Errorf("%w: %s", ErrReadOnlyProperty, cmd.Property)
	default:
		return fmt.Errorf("%w: %s/%s", ErrUnknownProperty, cmd.Node, cmd.Property)
	}
}

func (b *Bridge) applySetpoint(ctx context.Context, cmd homie.Command, write func(context.Context, float64) error) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(cmd.Value), 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidSetpoint, cmd.Property, cmd.Value)
	}
	if v < SetpointMin || v > SetpointMax {
		return fmt.Errorf("%w: %s %v outside %s", ErrInvalidSetpoint, cmd.Property, v, setpointFormat)
	}

	b.logInfo("applying command", "property", cmd.Property, "value", v)
	werr := write(ctx, v)
	return b.echo(cmd.Property, formatFloat(v), werr)
}

func (b *Bridge) applyEnum(ctx context.Context, cmd homie.Command, m Mapping, write func(context.Context, int) error) error {
	code, name, err := b.policy.Resolve(m, cmd.Value)
	if err != nil {
		return err
	}

	b.logInfo("applying command", "property", cmd.Property, "value", name, "code", code)
	werr := write(ctx, code)
	return b.echo(cmd.Property, name, werr)
}

// echo publishes the commanded value whether or not the write succeeded.
func (b *Bridge) echo(id, value string, writeErr error) error {
	perr := b.setLocked(id, value)
	if writeErr != nil {
		return errors.Join(fmt.Errorf("%w: %s: %w", ErrDeviceWrite, id, writeErr), perr)
	}
	return perr
}

// setLocked stores and publishes one property value. Caller holds b.mu.
func (b *Bridge) setLocked(id, value string) error {
	p, ok := b.props[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, id)
	}
	if _, err := p.Set(value); err != nil {
		return fmt.Errorf("publishing %s: %w", id, err)
	}
	return nil
}
