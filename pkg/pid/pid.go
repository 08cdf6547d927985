// Package pid implements the feedback-gain primitive used by the thermal
// control loops. Outputs are not clamped here; each consumer applies its own
// power limits.
package pid

// PID holds the gains and running state of one control loop.
type PID struct {
	kp float64
	ki float64
	kd float64

	windupLow  float64
	windupHigh float64

	integrator float64
	lastError  float64

	// Armed integrator reset: when the error crosses zero relative to the
	// armed reference, the integrator is cleared once. This avoids carrying
	// windup across a setpoint change without discarding useful state for
	// small adjustments.
	resetReference float64
	resetArmed     bool
}

// New returns a PID with the given gains and integrator windup limits.
func New(kp, ki, kd, windupLow, windupHigh float64) PID {
	return PID{kp: kp, ki: ki, kd: kd, windupLow: windupLow, windupHigh: windupHigh}
}

// KP returns the proportional gain.
func (p *PID) KP() float64 { return p.kp }

// Reset clears all running state, including any armed integrator reset.
func (p *PID) Reset() {
	p.integrator = 0
	p.lastError = 0
	p.resetReference = 0
	p.resetArmed = false
}

// ArmIntegratorReset arms a one-shot integrator clear that fires when the
// error sign flips relative to err. Arming with zero disarms.
func (p *PID) ArmIntegratorReset(err float64) {
	p.resetReference = err
	p.resetArmed = err != 0
}

// Integrator returns the accumulated integral term state.
func (p *PID) Integrator() float64 { return p.integrator }

// Compute advances the loop by dt seconds with the given error (target minus
// measured, or inverted for actuators that drive the error down) and returns
// the unclamped control output.
func (p *PID) Compute(err, dt float64) float64 {
	if p.resetArmed && (err == 0 || (err > 0) != (p.resetReference > 0)) {
		p.integrator = 0
		p.resetArmed = false
	}

	p.integrator += err * dt
	if p.integrator > p.windupHigh {
		p.integrator = p.windupHigh
	} else if p.integrator < p.windupLow {
		p.integrator = p.windupLow
	}

	derivative := 0.0
	if dt > 0 {
		derivative = (err - p.lastError) / dt
	}
	p.lastError = err

	return p.kp*err + p.ki*p.integrator + p.kd*derivative
}
