// Package sim provides a simulated instrument for development and testing.
// It implements the thermal and system hardware policies with a first-order
// thermal model, standing in for the real driver layer: peltier drive heats
// or cools the plate, waste heat accumulates in the heatsink, and the fan
// sheds it.
package sim

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/morefigs/opentrons-modules/pkg/config"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/thermistor"
)

// Instrument simulates the thermal hardware of one module.
type Instrument struct {
	mu  sync.Mutex
	cfg config.SimConfig

	converter thermistor.Conversion

	plateTemp    float64
	heatsinkTemp float64

	// Commanded outputs, normalized.
	left, right, center float64
	manualPower         float64
	manualEnabled       bool
	fanPower            float64

	serialNumber string
	tickMillis   uint32
}

// New creates a simulated instrument at ambient temperature.
func New(cfg *config.Config) *Instrument {
	return &Instrument{
		cfg:          cfg.Sim,
		converter:    thermistor.New(cfg.Thermistor.BiasResistanceKOhm, cfg.Thermistor.ADCMax),
		plateTemp:    cfg.Sim.AmbientTemp,
		heatsinkTemp: cfg.Sim.AmbientTemp,
		serialNumber: cfg.Sim.SerialNumber,
	}
}

// Step advances the thermal model by dt seconds and returns the readings
// event the ADC would have produced.
func (s *Instrument) Step(dt float64) messages.ThermistorReadings {
	s.mu.Lock()
	defer s.mu.Unlock()

	drive := (s.left + s.right + s.center) / 3.0
	if s.manualEnabled {
		drive = s.manualPower
	}

	// Plate: peltier drive against passive decay toward ambient.
	s.plateTemp += (drive*s.cfg.PlateGain -
		(s.plateTemp-s.cfg.AmbientTemp)*s.cfg.PlateLoss) * dt

	// Heatsink: waste heat proportional to |drive|, shed by passive loss
	// plus fan-assisted loss.
	loss := s.cfg.HeatsinkLoss + s.fanPower*s.cfg.FanCooling
	s.heatsinkTemp += (math.Abs(drive)*s.cfg.HeatsinkGain -
		(s.heatsinkTemp-s.cfg.AmbientTemp)*loss) * dt

	s.tickMillis += uint32(dt * 1000)

	return messages.ThermistorReadings{
		Timestamp: s.tickMillis,
		Plate:     s.converter.Backconvert(s.plateTemp),
		Heatsink:  s.converter.Backconvert(s.heatsinkTemp),
	}
}

// PlateTemp returns the modeled plate temperature.
func (s *Instrument) PlateTemp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plateTemp
}

// HeatsinkTemp returns the modeled heatsink temperature.
func (s *Instrument) HeatsinkTemp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heatsinkTemp
}

// SetPeltier implements thermal.Policy: manual single-drive mode.
func (s *Instrument) SetPeltier(power float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.Abs(power) > 1.0 {
		return fmt.Errorf("peltier power %f out of range", power)
	}
	s.manualEnabled = true
	s.manualPower = power
	return nil
}

// SetChannels implements thermal.Policy: closed-loop per-zone drive.
func (s *Instrument) SetChannels(left, right, center float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualEnabled = false
	s.left, s.right, s.center = clampDrive(left), clampDrive(right), clampDrive(center)
	return nil
}

// SetFan implements thermal.Policy.
func (s *Instrument) SetFan(power float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if power < 0 {
		power = 0
	}
	if power > 1 {
		power = 1
	}
	s.fanPower = power
	return nil
}

// Disable implements thermal.Policy: all peltier drive off.
func (s *Instrument) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualEnabled = false
	s.manualPower = 0
	s.left, s.right, s.center = 0, 0, 0
	return nil
}

// ManualEnabled reports whether the manual debug drive is engaged.
func (s *Instrument) ManualEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manualEnabled
}

// ManualPower returns the commanded manual drive.
func (s *Instrument) ManualPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manualPower
}

// FanPower returns the commanded fan drive.
func (s *Instrument) FanPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanPower
}

// GetSerialNumber implements system.Policy.
func (s *Instrument) GetSerialNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialNumber
}

// SetSerialNumber implements system.Policy.
func (s *Instrument) SetSerialNumber(serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serial == "" {
		return fmt.Errorf("empty serial number")
	}
	s.serialNumber = serial
	return nil
}

// EnterBootloader implements system.Policy. The simulator has no DFU mode to
// enter, so this just records the request.
func (s *Instrument) EnterBootloader() {
	log.Printf("sim: bootloader entry requested")
}

func clampDrive(p float64) float64 {
	if p < -1 {
		return -1
	}
	if p > 1 {
		return 1
	}
	return p
}
