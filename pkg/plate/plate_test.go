package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morefigs/opentrons-modules/pkg/config"
)

func newControl() *Control {
	cfg := config.Default()
	c := New(cfg.Plate, cfg.Fan)
	c.SetUniformTemps(23, 23)
	return c
}

func TestNewControllerIdle(t *testing.T) {
	c := newControl()

	assert.Equal(t, SteadyState, c.Status())
	assert.InDelta(t, 23.0, c.PlateTemp(), 1e-9)
	assert.InDelta(t, 23.0, c.HeatsinkTemp(), 1e-9)
}

func TestSetNewTargetHeatingOvershoot(t *testing.T) {
	c := newControl()

	c.SetNewTarget(50, 25, 10, RampInfinite)

	assert.Equal(t, InitialHeat, c.Status())
	assert.InDelta(t, 50.0, c.Setpoint(), 1e-9)
	// 50 + 1.0869 + 0.0105 * 25
	assert.InDelta(t, 51.3494, c.CurrentSetpoint(), 1e-6)
	// Infinite ramp places targets at the transitional setpoint immediately,
	// with the center channel biased hot.
	assert.InDelta(t, 51.3494, c.ChannelTarget(Left), 1e-6)
	assert.InDelta(t, 51.3494, c.ChannelTarget(Right), 1e-6)
	assert.InDelta(t, 51.8494, c.ChannelTarget(Center), 1e-6)
}

func TestSetNewTargetCoolingUndershoot(t *testing.T) {
	c := newControl()

	c.SetNewTarget(4, 25, 10, RampInfinite)

	assert.Equal(t, InitialCool, c.Status())
	// 4 - 0.4302 - 0.0133 * 25
	assert.InDelta(t, 3.2373, c.CurrentSetpoint(), 1e-6)
	assert.InDelta(t, 2.7373, c.ChannelTarget(Center), 1e-6)
}

func TestNoOvershootOnLongHold(t *testing.T) {
	c := newControl()

	c.SetNewTarget(50, 25, 120, RampInfinite)

	assert.Equal(t, InitialHeat, c.Status())
	assert.InDelta(t, 50.0, c.CurrentSetpoint(), 1e-9)
}

func TestNoOvershootOnSmallStep(t *testing.T) {
	c := newControl()

	c.SetNewTarget(24, 25, 10, RampInfinite)

	assert.Equal(t, InitialHeat, c.Status())
	assert.InDelta(t, 24.0, c.CurrentSetpoint(), 1e-9)
}

func TestHeatingBelowHeatsinkRelaxesOvershoot(t *testing.T) {
	c := newControl()
	c.SetUniformTemps(4, 30)

	c.SetNewTarget(10, 0, 10, RampInfinite)

	// Raw overshoot 11.0869 sits below the 30 degree heatsink, so the
	// transitional target is pulled back by the cold adjust.
	assert.InDelta(t, 9.0869, c.CurrentSetpoint(), 1e-6)
}

func TestFullPowerOutsideProportionalBand(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 25, 10, RampInfinite)

	out := c.UpdateControl(0.1)

	assert.Equal(t, 1.0, out.Left)
	assert.Equal(t, 1.0, out.Right)
	assert.Equal(t, 1.0, out.Center)
}

func TestFullPowerCooling(t *testing.T) {
	c := newControl()
	c.SetUniformTemps(50, 40)
	c.SetNewTarget(4, 0, 3600, RampInfinite)

	out := c.UpdateControl(0.1)

	assert.Equal(t, -1.0, out.Left)
	assert.Equal(t, -1.0, out.Right)
	assert.Equal(t, -1.0, out.Center)
}

func TestPhaseTransitions(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 25, 10, RampInfinite)
	require.Equal(t, InitialHeat, c.Status())

	// Plate arrives within the switch tolerance of the transitional target.
	c.SetUniformTemps(51, 40)
	c.UpdateControl(0.1)
	assert.Equal(t, Overshoot, c.Status())

	// Overshoot collapses to steady state on the next tick with the final
	// setpoint restored on every channel.
	c.UpdateControl(0.1)
	assert.Equal(t, SteadyState, c.Status())
	assert.InDelta(t, 50.0, c.CurrentSetpoint(), 1e-9)
	assert.InDelta(t, 50.0, c.ChannelTarget(Left), 1e-9)
	assert.InDelta(t, 50.0, c.ChannelTarget(Right), 1e-9)
	assert.InDelta(t, 50.0, c.ChannelTarget(Center), 1e-9)
}

func reachSteadyState(t *testing.T, c *Control, plateTemp, heatsink float64) {
	t.Helper()
	c.SetUniformTemps(plateTemp, heatsink)
	c.UpdateControl(0.1)
	c.UpdateControl(0.1)
	require.Equal(t, SteadyState, c.Status())
}

func TestHoldTimeCountdown(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 10, RampInfinite)
	reachSteadyState(t, c, 51, 40)

	remaining, total := c.HoldTime()
	assert.InDelta(t, 10.0, remaining, 1e-9)
	assert.InDelta(t, 10.0, total, 1e-9)

	// At temperature: the countdown runs.
	c.SetUniformTemps(50.2, 40)
	c.UpdateControl(1.0)
	remaining, _ = c.HoldTime()
	assert.InDelta(t, 9.0, remaining, 1e-9)

	// Off temperature: the countdown pauses.
	c.SetUniformTemps(48, 40)
	c.UpdateControl(1.0)
	remaining, _ = c.HoldTime()
	assert.InDelta(t, 9.0, remaining, 1e-9)

	// The countdown clamps at zero instead of going negative.
	c.SetUniformTemps(50.1, 40)
	c.UpdateControl(100)
	remaining, _ = c.HoldTime()
	assert.Zero(t, remaining)
}

func TestTempWithinSetpoint(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 10, RampInfinite)

	// Never true while ramping, even at temperature.
	c.SetUniformTemps(50.1, 40)
	assert.False(t, c.TempWithinSetpoint())

	reachSteadyState(t, c, 51, 40)
	c.SetUniformTemps(50.1, 40)
	assert.True(t, c.TempWithinSetpoint())

	c.SetUniformTemps(50.6, 40)
	assert.False(t, c.TempWithinSetpoint())
}

func TestFiniteRampWalksTarget(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 120, 2.0)

	// With a finite ramp the channel targets start at the plate temperature.
	assert.InDelta(t, 23.0, c.ChannelTarget(Left), 1e-9)

	c.UpdateControl(1.0)
	assert.InDelta(t, 25.0, c.ChannelTarget(Left), 1e-9)
	c.UpdateControl(1.0)
	assert.InDelta(t, 27.0, c.ChannelTarget(Left), 1e-9)

	// The target never walks past the setpoint.
	for i := 0; i < 60; i++ {
		c.UpdateControl(1.0)
	}
	assert.InDelta(t, 50.0, c.ChannelTarget(Left), 1e-9)
}

func TestFanDangerThreshold(t *testing.T) {
	c := newControl()
	c.SetUniformTemps(50, 80)
	c.SetNewTarget(50, 0, 3600, RampInfinite)

	out := c.UpdateControl(0.1)

	assert.Equal(t, 0.8, out.Fan)
}

func TestFanColdRampDown(t *testing.T) {
	c := newControl()
	c.SetNewTarget(4, 0, 3600, RampInfinite)
	require.Equal(t, InitialCool, c.Status())

	out := c.UpdateControl(0.1)

	assert.Equal(t, 0.7, out.Fan)
}

func TestFanColdHoldClamps(t *testing.T) {
	c := newControl()
	c.SetUniformTemps(10, 65)
	c.SetNewTarget(4, 0, 3600, RampInfinite)
	reachSteadyState(t, c, 4, 65)

	// Heatsink well above the 60 degree cold target: clamp high.
	out := c.UpdateControl(0.1)
	assert.Equal(t, 0.7, out.Fan)

	// Heatsink below the cold target: clamp low, never off.
	c.SetUniformTemps(4, 55)
	out = c.UpdateControl(0.1)
	assert.Equal(t, 0.35, out.Fan)
}

func TestFanWarmRampDown(t *testing.T) {
	c := newControl()
	c.SetUniformTemps(70, 30)
	c.SetNewTarget(40, 0, 3600, RampInfinite)
	require.Equal(t, InitialCool, c.Status())

	out := c.UpdateControl(0.1)

	assert.Equal(t, 0.55, out.Fan)
}

func TestFanWarmZone(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 3600, RampInfinite)

	// Heatsink under min(70, setpoint-2): low fixed drive.
	out := c.UpdateControl(0.1)
	assert.Equal(t, 0.15, out.Fan)

	// Heatsink over the threshold: PID clamped into the warm band.
	c.SetUniformTemps(23, 55)
	out = c.UpdateControl(0.1)
	assert.Equal(t, 0.55, out.Fan)
}

func TestFanHotZone(t *testing.T) {
	c := newControl()
	c.SetNewTarget(95, 0, 3600, RampInfinite)

	// Threshold for a hot setpoint is capped at the 70 degree safety limit.
	c.SetUniformTemps(60, 65)
	out := c.UpdateControl(0.1)
	assert.Equal(t, 0.15, out.Fan)

	c.SetUniformTemps(60, 74)
	out = c.UpdateControl(0.1)
	assert.Equal(t, 0.7, out.Fan)
}

func TestFanManualOverride(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 3600, RampInfinite)
	c.SetFanManual(true)

	// Manual override keeps the loop's hands off the fan.
	out := c.UpdateControl(0.1)
	assert.Zero(t, out.Fan)
	assert.True(t, c.FanManual())

	// A hot heatsink cancels the override.
	c.SetUniformTemps(23, 50)
	out = c.UpdateControl(0.1)
	assert.False(t, c.FanManual())
	assert.NotZero(t, out.Fan)
}

func TestFanIdlePower(t *testing.T) {
	c := newControl()

	tests := []struct {
		name      string
		heatsink  float64
		wantPower float64
		wantClear bool
	}{
		{"cool heatsink stays off", 30, 0, false},
		{"warm heatsink scales with temperature", 60, 0.6, false},
		{"hot heatsink forces danger power", 80, 0.8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetUniformTemps(23, tt.heatsink)
			power, clearManual := c.FanIdlePower()
			assert.InDelta(t, tt.wantPower, power, 1e-9)
			assert.Equal(t, tt.wantClear, clearManual)
		})
	}
}

func TestThermistorDriftCheck(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 0, RampInfinite)
	reachSteadyState(t, c, 51, 40)

	// The uniformity delay suppresses the check right after arrival.
	c.SetThermistors(47, 47, 50, 50, 52.5, 52.5, 40)
	assert.True(t, c.ThermistorDriftCheck())

	// Burn down the delay while at temperature.
	c.SetUniformTemps(50.1, 40)
	c.UpdateControl(6)
	c.UpdateControl(6)

	assert.True(t, c.ThermistorDriftCheck())

	// Spread beyond the bound now flags.
	c.SetThermistors(47, 47, 50, 50, 52.5, 52.5, 40)
	assert.False(t, c.ThermistorDriftCheck())

	// Near-ambient readings are exempt even with a wide spread.
	c.SetThermistors(20, 20, 23, 23, 26, 26, 40)
	assert.True(t, c.ThermistorDriftCheck())
}

func TestDriftCheckHealthyWhileRamping(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 0, RampInfinite)
	c.SetThermistors(40, 40, 45, 45, 50, 50, 40)

	assert.True(t, c.ThermistorDriftCheck())
}

func TestCrossedSetpoint(t *testing.T) {
	c := newControl()
	c.SetNewTarget(50, 0, 0, RampInfinite)

	c.SetUniformTemps(49, 40)
	assert.False(t, c.CrossedSetpoint(true))

	c.SetUniformTemps(50.5, 40)
	assert.True(t, c.CrossedSetpoint(true))
	assert.True(t, c.ChannelCrossedSetpoint(Left, true))
	assert.False(t, c.ChannelCrossedSetpoint(Left, false))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "initial-heat", InitialHeat.String())
	assert.Equal(t, "initial-cool", InitialCool.String())
	assert.Equal(t, "overshoot", Overshoot.String())
	assert.Equal(t, "steady-state", SteadyState.String())
	assert.Equal(t, "unknown", Status(99).String())
}
