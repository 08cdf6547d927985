// Package thermal implements the thermal task: it owns the raw sensor
// readings, converts ADC counts to calibrated temperatures, and hosts the
// plate controller plus the manual debug override path.
package thermal

import (
	"math"

	"github.com/morefigs/opentrons-modules/pkg/config"
	"github.com/morefigs/opentrons-modules/pkg/errcode"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/plate"
	"github.com/morefigs/opentrons-modules/pkg/queue"
	"github.com/morefigs/opentrons-modules/pkg/thermistor"
)

// Policy is the hardware-facing collaborator driving the peltiers and fan.
// Powers are normalized: peltiers in [-1, 1] with sign selecting heat vs
// cool, the fan in [0, 1].
type Policy interface {
	SetPeltier(power float64) error
	SetChannels(left, right, center float64) error
	SetFan(power float64) error
	Disable() error
}

// Readings is the latest raw sample plus its converted temperatures.
type Readings struct {
	LastTick     uint32
	PlateADC     uint16
	HeatsinkADC  uint16
	PlateTemp    float64
	HeatsinkTemp float64
}

// Task is the thermal task.
type Task struct {
	queue *queue.Queue[messages.ThermalMessage]
	comms *queue.Queue[messages.HostCommsMessage]

	converter thermistor.Conversion
	readings  Readings
	plate     *plate.Control

	// active gates closed-loop control; manual debug drive clears it.
	active bool
}

// New wires a thermal task to its queue and the host-comms queue it replies
// through.
func New(
	q *queue.Queue[messages.ThermalMessage],
	comms *queue.Queue[messages.HostCommsMessage],
	cfg *config.Config,
) *Task {
	return &Task{
		queue:     q,
		comms:     comms,
		converter: thermistor.New(cfg.Thermistor.BiasResistanceKOhm, cfg.Thermistor.ADCMax),
		plate:     plate.New(cfg.Plate, cfg.Fan),
	}
}

// Readings returns the latest sensor state.
func (t *Task) Readings() Readings {
	return t.readings
}

// Plate exposes the controller for status queries.
func (t *Task) Plate() *plate.Control {
	return t.plate
}

// Active reports whether closed-loop control is running.
func (t *Task) Active() bool {
	return t.active
}

// RunOnce processes at most one inbound message. It returns false when the
// queue was empty.
func (t *Task) RunOnce(policy Policy) bool {
	msg, ok := t.queue.TryRecv()
	if !ok {
		return false
	}

	switch m := msg.(type) {
	case messages.ThermistorReadings:
		t.handleReadings(m)
	case messages.GetTempDebugMessage:
		t.comms.TrySend(messages.GetTempDebugResponse{
			RespondingToID: m.ID,
			PlateTemp:      t.readings.PlateTemp,
			HeatsinkTemp:   t.readings.HeatsinkTemp,
			PlateADC:       t.readings.PlateADC,
			HeatsinkADC:    t.readings.HeatsinkADC,
		})
	case messages.SetPeltierDebugMessage:
		t.handleSetPeltierDebug(m, policy)
	case messages.SetPlateTemperatureMessage:
		t.handleSetPlateTemperature(m)
	case messages.GetPlateTempMessage:
		target := 0.0
		if t.active {
			target = t.plate.Setpoint()
		}
		t.comms.TrySend(messages.GetPlateTempResponse{
			RespondingToID: m.ID,
			TargetTemp:     target,
			CurrentTemp:    t.readings.PlateTemp,
		})
	case messages.DeactivatePlateMessage:
		t.active = false
		code := errcode.NoError
		if err := policy.Disable(); err != nil {
			code = errcode.ThermalPeltierError
		}
		if err := policy.SetFan(0); err != nil {
			code = errcode.ThermalHeatsinkFanError
		}
		t.sendAck(m.ID, code)
	}
	return true
}

func (t *Task) handleReadings(m messages.ThermistorReadings) {
	t.readings.LastTick = m.Timestamp
	t.readings.PlateADC = m.Plate
	t.readings.HeatsinkADC = m.Heatsink
	t.readings.PlateTemp = t.converter.Convert(m.Plate)
	t.readings.HeatsinkTemp = t.converter.Convert(m.Heatsink)
	t.plate.SetUniformTemps(t.readings.PlateTemp, t.readings.HeatsinkTemp)
}

func (t *Task) handleSetPeltierDebug(m messages.SetPeltierDebugMessage, policy Policy) {
	if math.Abs(m.Power) > 1.0 {
		// Reject before any hardware change.
		t.sendAck(m.ID, errcode.ThermalPeltierPowerError)
		return
	}

	// Manual drive takes over from the closed loop.
	t.active = false

	var err error
	if m.Power == 0 {
		err = policy.Disable()
	} else {
		err = policy.SetPeltier(m.Power)
	}
	if err != nil {
		t.sendAck(m.ID, errcode.ThermalPeltierError)
		return
	}
	t.sendAck(m.ID, errcode.NoError)
}

func (t *Task) handleSetPlateTemperature(m messages.SetPlateTemperatureMessage) {
	rampRate := m.RampRate
	if rampRate <= 0 {
		rampRate = plate.RampInfinite
	}
	t.plate.SetNewTarget(m.Setpoint, m.VolumeUL, m.HoldTime, rampRate)
	t.active = true
	t.sendAck(m.ID, errcode.NoError)
}

// Tick runs one control-loop step of dt seconds and applies the computed
// powers. Called at the fixed control rate, independently of message
// traffic.
func (t *Task) Tick(dt float64, policy Policy) {
	if !t.active {
		power, clearManual := t.plate.FanIdlePower()
		if clearManual {
			t.plate.SetFanManual(false)
		}
		_ = policy.SetFan(power)
		return
	}

	out := t.plate.UpdateControl(dt)
	if err := policy.SetChannels(out.Left, out.Right, out.Center); err != nil {
		t.comms.TrySend(messages.ErrorMessage{Code: errcode.ThermalPeltierError})
	}
	if err := policy.SetFan(out.Fan); err != nil {
		t.comms.TrySend(messages.ErrorMessage{Code: errcode.ThermalHeatsinkFanError})
	}

	if !t.plate.ThermistorDriftCheck() {
		// A drifting sensor makes the closed loop untrustworthy; shut the
		// outputs down and tell the operator.
		t.active = false
		_ = policy.Disable()
		_ = policy.SetFan(0)
		t.comms.TrySend(messages.ErrorMessage{Code: errcode.ThermalDriftError})
	}
}

func (t *Task) sendAck(id uint32, code errcode.Code) {
	t.comms.TrySend(messages.AcknowledgePrevious{
		RespondingToID: id,
		WithError:      code,
	})
}
