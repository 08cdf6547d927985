// Package plate implements the closed-loop thermal plate controller. It
// separates the feedback control system for the plate from the logical
// control of it: callers set the parameters of a thermal step and the
// controller handles the phased approach to the target every tick.
//
// The control cycle is a four-phase state machine. A new target enters
// InitialHeat or InitialCool, ramping every channel toward a transitional
// (overshoot-adjusted) setpoint. Once all channels are near that target the
// Overshoot phase snaps targets to the true setpoint, and SteadyState holds
// there; the hold-time countdown only progresses while the plate is actually
// at temperature.
package plate

import (
	"math"

	"github.com/morefigs/opentrons-modules/pkg/config"
	"github.com/morefigs/opentrons-modules/pkg/pid"
)

// Status is the controller phase.
type Status int

const (
	InitialHeat Status = iota
	InitialCool
	Overshoot
	SteadyState
)

func (s Status) String() string {
	switch s {
	case InitialHeat:
		return "initial-heat"
	case InitialCool:
		return "initial-cool"
	case Overshoot:
		return "overshoot"
	case SteadyState:
		return "steady-state"
	}
	return "unknown"
}

// RampInfinite is the ramp-rate sentinel for "jump immediately".
const RampInfinite = 1000.0

// Channel names one peltier zone.
type Channel int

const (
	Left Channel = iota
	Right
	Center
)

// Thermistors holds the pair of sensor readings for one peltier zone.
type Thermistors struct {
	A float64
	B float64
}

// Peltier is one plate zone: two thermistors, a moving target, and its own
// PID state. Owned exclusively by the Control that holds it.
type Peltier struct {
	Therms Thermistors
	Target float64
	PID    pid.PID
}

// CurrentTemp is the mean of the zone's two thermistors.
func (p *Peltier) CurrentTemp() float64 {
	return (p.Therms.A + p.Therms.B) / 2.0
}

// HeatsinkFan is the heatsink sensor plus the fan control state.
type HeatsinkFan struct {
	Temp          float64
	Target        float64
	PID           pid.PID
	ManualControl bool
}

// Power is the per-tick output of the controller, all in [-1, 1] for the
// peltiers and [0, 1] for the fan.
type Power struct {
	Left   float64
	Right  float64
	Center float64
	Fan    float64
}

type temperatureZone int

const (
	zoneCold temperatureZone = iota
	zoneWarm
	zoneHot
)

// Control is one plate control session. Created once and re-targeted with
// SetNewTarget for every thermal step.
type Control struct {
	cfg    config.PlateConfig
	fanCfg config.FanConfig

	status Status

	left   Peltier
	right  Peltier
	center Peltier
	fan    HeatsinkFan

	// setpoint is what the caller asked for; currentSetpoint is the working
	// (possibly overshoot-adjusted) transitional target.
	setpoint        float64
	currentSetpoint float64
	rampRate        float64
	holdTime        float64
	remainingHold   float64

	// uniformityTimer delays the drift check after reaching steady state so
	// transient gradients from the approach don't trip it.
	uniformityTimer float64
}

// New returns an idle controller with the given tuning.
func New(cfg config.PlateConfig, fanCfg config.FanConfig) *Control {
	newPeltier := func() Peltier {
		return Peltier{PID: pid.New(
			cfg.PeltierPID.KP, cfg.PeltierPID.KI, cfg.PeltierPID.KD,
			cfg.PeltierPID.WindupLow, cfg.PeltierPID.WindupHigh)}
	}
	return &Control{
		cfg:    cfg,
		fanCfg: fanCfg,
		status: SteadyState,
		left:   newPeltier(),
		right:  newPeltier(),
		center: newPeltier(),
		fan: HeatsinkFan{PID: pid.New(
			cfg.FanPID.KP, cfg.FanPID.KI, cfg.FanPID.KD,
			cfg.FanPID.WindupLow, cfg.FanPID.WindupHigh)},
	}
}

// SetThermistors updates all six plate sensor readings plus the heatsink.
func (c *Control) SetThermistors(leftA, leftB, centerA, centerB, rightA, rightB, heatsink float64) {
	c.left.Therms = Thermistors{A: leftA, B: leftB}
	c.center.Therms = Thermistors{A: centerA, B: centerB}
	c.right.Therms = Thermistors{A: rightA, B: rightB}
	c.fan.Temp = heatsink
}

// SetUniformTemps updates every plate thermistor to the same value. This is
// the single-plate-sensor path used on boards with one plate ADC channel.
func (c *Control) SetUniformTemps(plate, heatsink float64) {
	c.SetThermistors(plate, plate, plate, plate, plate, plate, heatsink)
}

// SetNewTarget starts a new thermal step and resets all per-channel control
// state. The initial phase is chosen by comparing the target against the
// current average plate temperature.
func (c *Control) SetNewTarget(setpoint, volumeUL, holdTime, rampRate float64) {
	c.rampRate = rampRate
	c.holdTime = holdTime
	c.remainingHold = holdTime
	c.setpoint = setpoint

	currentTemp := c.PlateTemp()

	// Heating vs cooling goes off the average plate temperature. Might have
	// to reconsider this for very small changes.
	if setpoint > currentTemp {
		c.status = InitialHeat
	} else {
		c.status = InitialCool
	}

	distance := math.Abs(setpoint - currentTemp)
	if distance > c.cfg.OvershootMinDelta && holdTime < c.cfg.OvershootMaxHold {
		if c.status == InitialHeat {
			c.currentSetpoint = c.calculateOvershoot(setpoint, volumeUL)
			// Heating to a temp below the heatsink would over-overshoot;
			// relax the transitional target.
			if c.currentSetpoint < c.fan.Temp {
				c.currentSetpoint = math.Max(currentTemp,
					c.currentSetpoint+c.cfg.ColdTargetAdjust)
			}
		} else {
			c.currentSetpoint = c.calculateUndershoot(setpoint, volumeUL)
		}
	} else {
		// Small step or long hold: no transient excursion, go direct.
		c.currentSetpoint = setpoint
	}

	centerTarget := c.centerChannelTarget(c.currentSetpoint, c.status == InitialHeat)

	c.resetControl(&c.left, c.currentSetpoint)
	c.resetControl(&c.right, c.currentSetpoint)
	c.resetControl(&c.center, centerTarget)
	c.resetFanControl()
}

// UpdateControl advances the state machine by dt seconds and computes the
// power outputs for every channel and the fan.
func (c *Control) UpdateControl(dt float64) Power {
	var out Power
	switch c.status {
	case InitialHeat, InitialCool:
		heating := c.status == InitialHeat
		centerTarget := c.centerChannelTarget(c.currentSetpoint, heating)
		// Every channel must independently reach its transitional target.
		atTarget := c.channelAtTarget(&c.left, c.currentSetpoint) &&
			c.channelAtTarget(&c.right, c.currentSetpoint) &&
			c.channelAtTarget(&c.center, centerTarget)
		if atTarget {
			c.status = Overshoot
			c.left.Target = c.currentSetpoint
			c.right.Target = c.currentSetpoint
			c.center.Target = centerTarget
		} else {
			c.updateRamp(&c.left, dt, c.currentSetpoint)
			c.updateRamp(&c.right, dt, c.currentSetpoint)
			c.updateRamp(&c.center, dt, centerTarget)
		}
	case Overshoot:
		c.currentSetpoint = c.setpoint
		c.left.Target = c.setpoint
		c.right.Target = c.setpoint
		c.center.Target = c.setpoint
		c.status = SteadyState
		c.uniformityTimer = c.cfg.UniformityCheckDelay
	case SteadyState:
		if c.TempWithinSetpoint() {
			// Hold time is ONLY updated in steady state.
			c.remainingHold = math.Max(c.remainingHold-dt, 0)
			c.uniformityTimer = math.Max(c.uniformityTimer-dt, 0)
		}
	}

	out.Left = c.updatePID(&c.left, dt)
	out.Right = c.updatePID(&c.right, dt)
	out.Center = c.updatePID(&c.center, dt)

	if c.fan.ManualControl {
		out.Fan = 0
		// Past this threshold the heatsink needs the fan back regardless of
		// what the operator asked for.
		if c.fan.Temp > c.fanCfg.IdleInactiveThreshold {
			c.fan.ManualControl = false
		}
	}
	if !c.fan.ManualControl {
		out.Fan = c.updateFan(dt)
	}

	return out
}

// FanIdlePower computes the fan drive for an idle plate. The second return
// value asks the caller to clear the fan's manual override; mutating that
// flag from a read path would hide the transition.
func (c *Control) FanIdlePower() (power float64, clearManual bool) {
	temp := c.fan.Temp
	if temp < c.fanCfg.IdleInactiveThreshold {
		return 0, false
	}
	if temp > c.fanCfg.DangerThreshold {
		return c.fanCfg.DangerPower, true
	}
	return temp * c.fanCfg.IdlePowerSlope, false
}

// SetFanManual sets or clears the fan's manual override.
func (c *Control) SetFanManual(manual bool) {
	c.fan.ManualControl = manual
}

// FanManual reports whether the fan is under manual override.
func (c *Control) FanManual() bool {
	return c.fan.ManualControl
}

// Status returns the current phase.
func (c *Control) Status() Status {
	return c.status
}

// Setpoint returns the final user-requested target.
func (c *Control) Setpoint() float64 {
	return c.setpoint
}

// CurrentSetpoint returns the working (possibly overshoot-adjusted) target.
func (c *Control) CurrentSetpoint() float64 {
	return c.currentSetpoint
}

// ChannelTarget returns the ramped target for one zone.
func (c *Control) ChannelTarget(ch Channel) float64 {
	return c.channel(ch).Target
}

// HoldTime returns the remaining and total hold time for the current step.
func (c *Control) HoldTime() (remaining, total float64) {
	return c.remainingHold, c.holdTime
}

// PlateTemp is the mean of the three channel temperatures.
func (c *Control) PlateTemp() float64 {
	return (c.left.CurrentTemp() + c.right.CurrentTemp() + c.center.CurrentTemp()) / 3.0
}

// HeatsinkTemp returns the current heatsink temperature.
func (c *Control) HeatsinkTemp() float64 {
	return c.fan.Temp
}

// TempWithinSetpoint reports whether the plate is being held at the final
// setpoint. Only ever true in steady state.
func (c *Control) TempWithinSetpoint() bool {
	return c.status == SteadyState &&
		math.Abs(c.currentSetpoint-c.PlateTemp()) < c.cfg.SetpointTolerance
}

// ThermistorDriftCheck reports sensor health: false means the spread across
// the six plate thermistors exceeds the drift bound. Always healthy outside
// steady state and while the uniformity delay is still running.
func (c *Control) ThermistorDriftCheck() bool {
	if c.status != SteadyState || c.uniformityTimer > 0 {
		return true
	}
	temps := c.peltierTemps()
	min, max := temps[0], temps[0]
	for _, t := range temps {
		min = math.Min(t, min)
		max = math.Max(t, max)
	}
	return math.Abs(max-min) <= c.cfg.ThermistorDriftMax || max <= c.cfg.DriftIgnoreBelow
}

// CrossedSetpoint reports whether the average plate temperature has passed
// the final setpoint in the direction of travel.
func (c *Control) CrossedSetpoint(heating bool) bool {
	if heating {
		return c.PlateTemp() >= c.setpoint
	}
	return c.PlateTemp() <= c.setpoint
}

// ChannelCrossedSetpoint is CrossedSetpoint for a single zone.
func (c *Control) ChannelCrossedSetpoint(ch Channel, heating bool) bool {
	p := c.channel(ch)
	if heating {
		return p.CurrentTemp() >= c.setpoint
	}
	return p.CurrentTemp() <= c.setpoint
}

func (c *Control) channel(ch Channel) *Peltier {
	switch ch {
	case Left:
		return &c.left
	case Right:
		return &c.right
	default:
		return &c.center
	}
}

func (c *Control) peltierTemps() [6]float64 {
	return [6]float64{
		c.left.Therms.A, c.left.Therms.B,
		c.center.Therms.A, c.center.Therms.B,
		c.right.Therms.A, c.right.Therms.B,
	}
}

func (c *Control) calculateOvershoot(setpoint, volumeUL float64) float64 {
	return setpoint + c.cfg.OvershootBaseDeg + c.cfg.OvershootDegPerUL*volumeUL
}

func (c *Control) calculateUndershoot(setpoint, volumeUL float64) float64 {
	return setpoint - c.cfg.UndershootBaseDeg - c.cfg.UndershootDegPerUL*volumeUL
}

// centerChannelTarget biases the center zone target: hotter while heating,
// cooler while cooling.
func (c *Control) centerChannelTarget(setpoint float64, heating bool) float64 {
	if heating {
		return setpoint + c.cfg.CenterChannelBias
	}
	return setpoint - c.cfg.CenterChannelBias
}

func (c *Control) channelAtTarget(p *Peltier, target float64) bool {
	return math.Abs(p.CurrentTemp()-target) <= c.cfg.TargetSwitchTolerance
}

func (c *Control) updateRamp(p *Peltier, dt, target float64) {
	if c.rampRate >= RampInfinite {
		p.Target = target
	}
	if p.Target < target {
		p.Target = math.Min(p.Target+c.rampRate*dt, target)
	} else if p.Target > target {
		p.Target = math.Max(p.Target-c.rampRate*dt, target)
	}
}

func (c *Control) updatePID(p *Peltier, dt float64) float64 {
	currentTemp := p.CurrentTemp()
	if (c.status == InitialHeat || c.status == InitialCool) &&
		c.movingAwayFromAmbient(currentTemp, p.Target) {
		// Outside the proportional band there is no point computing a
		// feedback term; drive flat out toward the target.
		if math.Abs(currentTemp-p.Target) > proportionalBand(&p.PID) {
			if p.Target > currentTemp {
				return 1.0
			}
			return -1.0
		}
	}
	return p.PID.Compute(p.Target-currentTemp, dt)
}

// updateFan regulates the heatsink. All error calculations are the inverse
// of the peltiers: fans drive with positive magnitude to lower the
// temperature, so the error is current minus target.
func (c *Control) updateFan(dt float64) float64 {
	if c.fan.Temp > c.fanCfg.DangerThreshold {
		return c.fanCfg.DangerPower
	}
	zone := c.zoneFor(c.setpoint)
	if zone == zoneCold {
		if c.status == InitialCool {
			// Ramping down to a cold temp is always fixed drive.
			return c.fanCfg.RampDownColdPower
		}
		// Holding at a cold temp PID-controls the heatsink to the cold
		// target; re-arm the integrator whenever the target changes.
		if c.fan.Target != c.fanCfg.ColdTargetTemp {
			c.fan.Target = c.fanCfg.ColdTargetTemp
			c.fan.PID.ArmIntegratorReset(c.fan.Temp - c.fanCfg.ColdTargetTemp)
		}
		power := c.fan.PID.Compute(c.fan.Temp-c.fan.Target, dt)
		return clamp(power, c.fanCfg.ColdPowerMin, c.fanCfg.ColdPowerMax)
	}
	if c.status == InitialCool {
		return c.fanCfg.RampDownPower
	}
	// Ramping up or holding warm/hot: keep the heatsink under the safety
	// threshold or setpoint plus margin, whichever is lower.
	threshold := math.Min(c.fanCfg.WarmSafetyThreshold, c.setpoint+c.fanCfg.WarmTargetOffset)
	if c.fan.Temp < threshold {
		return c.fanCfg.UnderThresholdPower
	}
	if c.fan.Target != threshold {
		c.fan.Target = threshold
		c.fan.PID.ArmIntegratorReset(c.fan.Temp - c.fan.Target)
	}
	power := c.fan.PID.Compute(c.fan.Temp-c.fan.Target, dt)
	if zone == zoneHot {
		return clamp(power, c.fanCfg.HotPowerMin, c.fanCfg.HotPowerMax)
	}
	return clamp(power, c.fanCfg.WarmPowerMin, c.fanCfg.WarmPowerMax)
}

func (c *Control) resetControl(p *Peltier, setpoint float64) {
	if math.Abs(p.Target-setpoint) >= c.cfg.WindupResetThreshold {
		// Only reset the PID if the target moved more than a few degrees.
		p.PID.Reset()
	}

	if c.rampRate >= RampInfinite {
		p.Target = setpoint
		if !c.movingAwayFromAmbient(p.CurrentTemp(), p.Target) {
			p.PID.ArmIntegratorReset(p.Target - p.CurrentTemp())
		}
	} else {
		// With a finite ramp the target starts at the plate and walks out.
		p.Target = c.PlateTemp()
	}
}

func (c *Control) resetFanControl() {
	c.fan.Target = c.currentSetpoint + c.fanCfg.SetpointOffset
	c.fan.PID.ArmIntegratorReset(c.fan.Temp - c.fan.Target)
}

// movingAwayFromAmbient is true when the commanded direction of travel takes
// the channel further from ambient than it already is.
func (c *Control) movingAwayFromAmbient(current, target float64) bool {
	if target > c.cfg.AmbientTemp {
		return target > current
	}
	if target < c.cfg.AmbientTemp {
		return target < current
	}
	return false
}

func (c *Control) zoneFor(temp float64) temperatureZone {
	if temp < c.fanCfg.ColdZoneBelow {
		return zoneCold
	}
	if temp < c.fanCfg.HotZoneAt {
		return zoneWarm
	}
	return zoneHot
}

func proportionalBand(p *pid.PID) float64 {
	return 1.0 / p.KP()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
