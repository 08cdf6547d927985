// Package thermistor converts raw ADC counts into calibrated plate and
// heatsink temperatures. The sensing element is a 10k NTC bead (NXFT15
// family) at the bottom of a resistor divider, read by a 16-bit ADC.
//
// The conversion uses the B-parameter equation in float32, matching the
// precision of the tables the calibration data was captured with.
package thermistor

import "github.com/chewxy/math32"

const (
	// Nominal bead parameters: 10 kΩ at 25 °C, B25/85 for the NXFT15XV103.
	nominalResistanceKOhm float32 = 10.0
	nominalTempC          float32 = 25.0
	betaCoefficient       float32 = 3428.0
	kelvinOffset          float32 = 273.15
)

// Conversion holds the divider circuit constants for one board revision.
type Conversion struct {
	biasKOhm float32
	adcMax   uint16
}

// New returns a Conversion for a divider with the given bias resistance
// (kΩ, thermistor on the low side) and full-scale ADC count.
func New(biasResistanceKOhm float64, adcMax uint16) Conversion {
	return Conversion{biasKOhm: float32(biasResistanceKOhm), adcMax: adcMax}
}

// Convert turns a raw ADC count into °C. Counts at the rails are clamped one
// LSB inside full scale; a railed input means an open or shorted sensor and
// the caller is expected to range-check the result.
func (c Conversion) Convert(count uint16) float64 {
	if count == 0 {
		count = 1
	}
	if count >= c.adcMax {
		count = c.adcMax - 1
	}
	resistance := c.biasKOhm * float32(count) / float32(c.adcMax-count)
	invT := 1.0/(nominalTempC+kelvinOffset) +
		math32.Log(resistance/nominalResistanceKOhm)/betaCoefficient
	return float64(1.0/invT - kelvinOffset)
}

// Backconvert is the inverse of Convert: the ADC count that a bead at tempC
// would produce. Used by the simulator and by calibration checks.
func (c Conversion) Backconvert(tempC float64) uint16 {
	t := float32(tempC) + kelvinOffset
	resistance := nominalResistanceKOhm *
		math32.Exp(betaCoefficient*(1.0/t-1.0/(nominalTempC+kelvinOffset)))
	count := math32.Round(float32(c.adcMax) * resistance / (resistance + c.biasKOhm))
	if count < 1 {
		return 1
	}
	if count > float32(c.adcMax-1) {
		return c.adcMax - 1
	}
	return uint16(count)
}
