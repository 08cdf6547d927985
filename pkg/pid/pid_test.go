package pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProportionalTerm(t *testing.T) {
	p := New(2.0, 0, 0, -1, 1)

	assert.InDelta(t, 4.0, p.Compute(2.0, 0.1), 1e-9)
	assert.InDelta(t, -1.0, p.Compute(-0.5, 0.1), 1e-9)
}

func TestIntegralTermAccumulates(t *testing.T) {
	p := New(0, 1.0, 0, -10, 10)

	assert.InDelta(t, 0.2, p.Compute(2.0, 0.1), 1e-9)
	assert.InDelta(t, 0.4, p.Compute(2.0, 0.1), 1e-9)
	assert.InDelta(t, 0.4, p.Integrator(), 1e-9)
}

func TestIntegratorWindupClamp(t *testing.T) {
	p := New(0, 1.0, 0, -1, 1)

	for i := 0; i < 100; i++ {
		p.Compute(5.0, 0.1)
	}
	assert.InDelta(t, 1.0, p.Integrator(), 1e-9)

	for i := 0; i < 100; i++ {
		p.Compute(-5.0, 0.1)
	}
	assert.InDelta(t, -1.0, p.Integrator(), 1e-9)
}

func TestDerivativeTerm(t *testing.T) {
	p := New(0, 0, 1.0, -1, 1)

	// First call: lastError starts at 0, slope is err/dt.
	assert.InDelta(t, 10.0, p.Compute(1.0, 0.1), 1e-9)
	// Constant error, no derivative contribution.
	assert.InDelta(t, 0.0, p.Compute(1.0, 0.1), 1e-9)
	// Falling error produces a negative term.
	assert.InDelta(t, -5.0, p.Compute(0.5, 0.1), 1e-9)
}

func TestZeroDTSkipsDerivative(t *testing.T) {
	p := New(0, 0, 1.0, -1, 1)

	assert.InDelta(t, 0.0, p.Compute(1.0, 0), 1e-9)
}

func TestReset(t *testing.T) {
	p := New(1, 1, 1, -10, 10)
	p.Compute(2.0, 0.1)
	p.ArmIntegratorReset(2.0)

	p.Reset()

	assert.Zero(t, p.Integrator())
	// A sign flip after Reset must not clear anything; the arm is gone.
	p.Compute(1.0, 0.1)
	p.Compute(-0.5, 0.1)
	assert.InDelta(t, 0.05, p.Integrator(), 1e-9)
}

func TestArmedIntegratorReset(t *testing.T) {
	p := New(0, 1.0, 0, -10, 10)

	// Wind up some integrator driving toward a target.
	p.Compute(3.0, 1.0)
	p.Compute(3.0, 1.0)
	assert.InDelta(t, 6.0, p.Integrator(), 1e-9)

	// Arm on the current error; same-sign errors keep accumulating.
	p.ArmIntegratorReset(3.0)
	p.Compute(1.0, 1.0)
	assert.InDelta(t, 7.0, p.Integrator(), 1e-9)

	// Crossing zero fires the one-shot clear before integrating.
	p.Compute(-0.5, 1.0)
	assert.InDelta(t, -0.5, p.Integrator(), 1e-9)

	// Fired: flipping back does not clear again.
	p.Compute(0.5, 1.0)
	assert.InDelta(t, 0.0, p.Integrator(), 1e-9)
}

func TestArmWithZeroDisarms(t *testing.T) {
	p := New(0, 1.0, 0, -10, 10)
	p.Compute(2.0, 1.0)
	p.ArmIntegratorReset(0)

	p.Compute(-1.0, 1.0)
	assert.InDelta(t, 1.0, p.Integrator(), 1e-9)
}

func TestKP(t *testing.T) {
	p := New(0.97, 0.102, 1.901, -1, 1)
	assert.Equal(t, 0.97, p.KP())
}
