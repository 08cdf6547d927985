// Package config holds the tunable constants of the thermal module firmware.
// Every empirically calibrated value (PID gains, overshoot curves, fan power
// clamps, thermistor circuit constants) lives here so a calibration pass can
// replace numbers without touching control code.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full firmware configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Thermistor ThermistorConfig `yaml:"thermistor"`
	Plate      PlateConfig      `yaml:"plate"`
	Fan        FanConfig        `yaml:"fan"`
	Sim        SimConfig        `yaml:"sim"`
}

// SerialConfig contains the host serial link configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ThermistorConfig contains the sensing divider circuit constants.
type ThermistorConfig struct {
	BiasResistanceKOhm float64 `yaml:"bias_resistance_kohm"`
	ADCMax             uint16  `yaml:"adc_max"`
}

// PIDConfig contains the gains and windup limits for one control loop.
type PIDConfig struct {
	KP         float64 `yaml:"kp"`
	KI         float64 `yaml:"ki"`
	KD         float64 `yaml:"kd"`
	WindupLow  float64 `yaml:"windup_low"`
	WindupHigh float64 `yaml:"windup_high"`
}

// PlateConfig contains the plate controller tuning.
type PlateConfig struct {
	PeltierPID PIDConfig `yaml:"peltier_pid"`
	FanPID     PIDConfig `yaml:"fan_pid"`

	AmbientTemp float64 `yaml:"ambient_temp"`

	// SetpointTolerance is the at-temperature band for hold-time countdown.
	SetpointTolerance float64 `yaml:"setpoint_tolerance"`
	// TargetSwitchTolerance is how close every channel must be to the
	// transitional setpoint before the ramp phase ends.
	TargetSwitchTolerance float64 `yaml:"target_switch_tolerance"`

	// Overshoot is only applied when the step is at least OvershootMinDelta
	// degrees and the hold is shorter than OvershootMaxHold seconds.
	OvershootMinDelta float64 `yaml:"overshoot_min_delta"`
	OvershootMaxHold  float64 `yaml:"overshoot_max_hold"`

	// Overshoot/undershoot magnitude as a linear function of sample volume.
	// Larger volumes lag more and need a larger transient excursion.
	OvershootDegPerUL  float64 `yaml:"overshoot_deg_per_ul"`
	OvershootBaseDeg   float64 `yaml:"overshoot_base_deg"`
	UndershootDegPerUL float64 `yaml:"undershoot_deg_per_ul"`
	UndershootBaseDeg  float64 `yaml:"undershoot_base_deg"`

	// ColdTargetAdjust relaxes the overshoot target when heating to a
	// temperature below the current heatsink temperature.
	ColdTargetAdjust float64 `yaml:"cold_target_adjust"`

	// CenterChannelBias offsets the center channel target, positive while
	// heating and negative while cooling; the center zone has a different
	// thermal mass than the edges.
	CenterChannelBias float64 `yaml:"center_channel_bias"`

	// WindupResetThreshold is the minimum target move that resets the PID
	// integrator outright.
	WindupResetThreshold float64 `yaml:"windup_reset_threshold"`

	UniformityCheckDelay float64 `yaml:"uniformity_check_delay"`
	ThermistorDriftMax   float64 `yaml:"thermistor_drift_max"`
	// Drift detection is unreliable near ambient; readings at or below this
	// temperature are never flagged.
	DriftIgnoreBelow float64 `yaml:"drift_ignore_below"`
}

// FanConfig contains the heatsink fan regulation tuning.
type FanConfig struct {
	// Above DangerThreshold the fan runs at DangerPower unconditionally.
	DangerThreshold float64 `yaml:"danger_threshold"`
	DangerPower     float64 `yaml:"danger_power"`

	// Idle behavior while the plate is inactive.
	IdleInactiveThreshold float64 `yaml:"idle_inactive_threshold"`
	IdlePowerSlope        float64 `yaml:"idle_power_slope"`

	// Setpoint zone breakpoints: below ColdZoneBelow is COLD, at or above
	// HotZoneAt is HOT, WARM in between.
	ColdZoneBelow float64 `yaml:"cold_zone_below"`
	HotZoneAt     float64 `yaml:"hot_zone_at"`

	RampDownColdPower float64 `yaml:"ramp_down_cold_power"`
	RampDownPower     float64 `yaml:"ramp_down_power"`

	ColdTargetTemp float64 `yaml:"cold_target_temp"`
	ColdPowerMin   float64 `yaml:"cold_power_min"`
	ColdPowerMax   float64 `yaml:"cold_power_max"`

	WarmSafetyThreshold float64 `yaml:"warm_safety_threshold"`
	WarmTargetOffset    float64 `yaml:"warm_target_offset"`
	UnderThresholdPower float64 `yaml:"under_threshold_power"`
	WarmPowerMin        float64 `yaml:"warm_power_min"`
	WarmPowerMax        float64 `yaml:"warm_power_max"`
	HotPowerMin         float64 `yaml:"hot_power_min"`
	HotPowerMax         float64 `yaml:"hot_power_max"`

	// SetpointOffset is the fan target relative to the working setpoint when
	// a new step begins.
	SetpointOffset float64 `yaml:"setpoint_offset"`
}

// SimConfig contains the simulated instrument model parameters.
type SimConfig struct {
	SampleRate   time.Duration `yaml:"sample_rate"`
	AmbientTemp  float64       `yaml:"ambient_temp"`
	PlateGain    float64       `yaml:"plate_gain"`    // °C/s at full peltier drive
	PlateLoss    float64       `yaml:"plate_loss"`    // fraction of excess lost per second
	HeatsinkGain float64       `yaml:"heatsink_gain"` // °C/s of waste heat at full drive
	HeatsinkLoss float64       `yaml:"heatsink_loss"`
	FanCooling   float64       `yaml:"fan_cooling"` // extra loss per unit fan power
	SerialNumber string        `yaml:"serial_number"`
}

// Default returns the calibrated default configuration. The plate and fan
// numbers are tuned values carried over from instrument bring-up; do not
// rederive them from a thermal model.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Thermistor: ThermistorConfig{
			BiasResistanceKOhm: 45.3,
			ADCMax:             0xFFFF,
		},
		Plate: PlateConfig{
			PeltierPID: PIDConfig{
				KP: 0.97, KI: 0.102, KD: 1.901,
				WindupLow: -1.0, WindupHigh: 1.0,
			},
			FanPID: PIDConfig{
				KP: 0.35, KI: 0.017, KD: 0.0,
				WindupLow: -1.0, WindupHigh: 1.0,
			},
			AmbientTemp:           23.0,
			SetpointTolerance:     0.5,
			TargetSwitchTolerance: 1.0,
			OvershootMinDelta:     2.0,
			OvershootMaxHold:      60.0,
			OvershootDegPerUL:     0.0105,
			OvershootBaseDeg:      1.0869,
			UndershootDegPerUL:    0.0133,
			UndershootBaseDeg:     0.4302,
			ColdTargetAdjust:      -2.0,
			CenterChannelBias:     0.5,
			WindupResetThreshold:  3.0,
			UniformityCheckDelay:  10.0,
			ThermistorDriftMax:    4.0,
			DriftIgnoreBelow:      30.0,
		},
		Fan: FanConfig{
			DangerThreshold:       75.0,
			DangerPower:           0.8,
			IdleInactiveThreshold: 45.0,
			IdlePowerSlope:        0.01,
			ColdZoneBelow:         25.0,
			HotZoneAt:             70.0,
			RampDownColdPower:     0.7,
			RampDownPower:         0.55,
			ColdTargetTemp:        60.0,
			ColdPowerMin:          0.35,
			ColdPowerMax:          0.7,
			WarmSafetyThreshold:   70.0,
			WarmTargetOffset:      -2.0,
			UnderThresholdPower:   0.15,
			WarmPowerMin:          0.35,
			WarmPowerMax:          0.55,
			HotPowerMin:           0.35,
			HotPowerMax:           0.7,
			SetpointOffset:        2.0,
		},
		Sim: SimConfig{
			SampleRate:   100 * time.Millisecond,
			AmbientTemp:  23.0,
			PlateGain:    2.0,
			PlateLoss:    0.02,
			HeatsinkGain: 0.5,
			HeatsinkLoss: 0.05,
			FanCooling:   0.2,
			SerialNumber: "TDSIM001",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if
// missing. A zero in a tuned field means "not configured", never a real
// calibration value.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Thermistor.BiasResistanceKOhm == 0 {
		c.Thermistor.BiasResistanceKOhm = def.Thermistor.BiasResistanceKOhm
	}
	if c.Thermistor.ADCMax == 0 {
		c.Thermistor.ADCMax = def.Thermistor.ADCMax
	}

	if c.Plate.PeltierPID.KP == 0 {
		c.Plate.PeltierPID = def.Plate.PeltierPID
	}
	if c.Plate.FanPID.KP == 0 {
		c.Plate.FanPID = def.Plate.FanPID
	}
	if c.Plate.AmbientTemp == 0 {
		c.Plate.AmbientTemp = def.Plate.AmbientTemp
	}
	if c.Plate.SetpointTolerance == 0 {
		c.Plate.SetpointTolerance = def.Plate.SetpointTolerance
	}
	if c.Plate.TargetSwitchTolerance == 0 {
		c.Plate.TargetSwitchTolerance = def.Plate.TargetSwitchTolerance
	}
	if c.Plate.OvershootMinDelta == 0 {
		c.Plate.OvershootMinDelta = def.Plate.OvershootMinDelta
	}
	if c.Plate.OvershootMaxHold == 0 {
		c.Plate.OvershootMaxHold = def.Plate.OvershootMaxHold
	}
	if c.Plate.OvershootDegPerUL == 0 {
		c.Plate.OvershootDegPerUL = def.Plate.OvershootDegPerUL
	}
	if c.Plate.OvershootBaseDeg == 0 {
		c.Plate.OvershootBaseDeg = def.Plate.OvershootBaseDeg
	}
	if c.Plate.UndershootDegPerUL == 0 {
		c.Plate.UndershootDegPerUL = def.Plate.UndershootDegPerUL
	}
	if c.Plate.UndershootBaseDeg == 0 {
		c.Plate.UndershootBaseDeg = def.Plate.UndershootBaseDeg
	}
	if c.Plate.ColdTargetAdjust == 0 {
		c.Plate.ColdTargetAdjust = def.Plate.ColdTargetAdjust
	}
	if c.Plate.CenterChannelBias == 0 {
		c.Plate.CenterChannelBias = def.Plate.CenterChannelBias
	}
	if c.Plate.WindupResetThreshold == 0 {
		c.Plate.WindupResetThreshold = def.Plate.WindupResetThreshold
	}
	if c.Plate.UniformityCheckDelay == 0 {
		c.Plate.UniformityCheckDelay = def.Plate.UniformityCheckDelay
	}
	if c.Plate.ThermistorDriftMax == 0 {
		c.Plate.ThermistorDriftMax = def.Plate.ThermistorDriftMax
	}
	if c.Plate.DriftIgnoreBelow == 0 {
		c.Plate.DriftIgnoreBelow = def.Plate.DriftIgnoreBelow
	}

	// The fan table is all-or-nothing: a config with no danger threshold is
	// treated as having no fan section at all.
	if c.Fan.DangerThreshold == 0 {
		c.Fan = def.Fan
	}

	if c.Sim.SampleRate == 0 {
		c.Sim.SampleRate = def.Sim.SampleRate
	}
	if c.Sim.AmbientTemp == 0 {
		c.Sim.AmbientTemp = def.Sim.AmbientTemp
	}
	if c.Sim.PlateGain == 0 {
		c.Sim.PlateGain = def.Sim.PlateGain
	}
	if c.Sim.PlateLoss == 0 {
		c.Sim.PlateLoss = def.Sim.PlateLoss
	}
	if c.Sim.HeatsinkGain == 0 {
		c.Sim.HeatsinkGain = def.Sim.HeatsinkGain
	}
	if c.Sim.HeatsinkLoss == 0 {
		c.Sim.HeatsinkLoss = def.Sim.HeatsinkLoss
	}
	if c.Sim.FanCooling == 0 {
		c.Sim.FanCooling = def.Sim.FanCooling
	}
	if c.Sim.SerialNumber == "" {
		c.Sim.SerialNumber = def.Sim.SerialNumber
	}
}
