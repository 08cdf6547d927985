// Package comms implements the host-comms task: the translation layer
// between the newline-delimited text protocol on the serial connection and
// the typed messages the other tasks exchange.
//
// Commands that need another task's state are forwarded with a fresh
// correlation id and remembered in a pending cache; nothing is written to
// the host until the matching response comes back. The caller supplies the
// tx buffer for each invocation and the task never writes past its capacity.
package comms

import (
	"github.com/morefigs/opentrons-modules/pkg/errcode"
	"github.com/morefigs/opentrons-modules/pkg/gcode"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/queue"
)

// ackCacheSize bounds how many commands may be awaiting a response at once.
const ackCacheSize = 8

type pendingGCode struct {
	id   uint32
	code gcode.GCode
}

// Task is the host-comms task. It owns its queue and the pending-ack cache;
// it never touches another task's state directly.
type Task struct {
	queue   *queue.Queue[messages.HostCommsMessage]
	system  *queue.Queue[messages.SystemMessage]
	thermal *queue.Queue[messages.ThermalMessage]

	mayConnect bool
	nextID     uint32
	pending    []pendingGCode
}

// New wires a host-comms task to its own queue and the queues it forwards
// commands to.
func New(
	q *queue.Queue[messages.HostCommsMessage],
	system *queue.Queue[messages.SystemMessage],
	thermal *queue.Queue[messages.ThermalMessage],
) *Task {
	return &Task{
		queue:      q,
		system:     system,
		thermal:    thermal,
		mayConnect: true,
		pending:    make([]pendingGCode, 0, ackCacheSize),
	}
}

// MayConnect reports whether the serial connection is allowed; a
// ForceUSBDisconnect clears it.
func (t *Task) MayConnect() bool {
	return t.mayConnect
}

// RunOnce processes at most one inbound message and writes at most one
// response line into tx, returning the number of bytes written. Replies that
// do not fit are replaced by a truncated tx-overrun error rather than
// overflowing the buffer.
func (t *Task) RunOnce(tx []byte) int {
	msg, ok := t.queue.TryRecv()
	if !ok {
		return 0
	}

	switch m := msg.(type) {
	case messages.IncomingMessageFromHost:
		return t.handleLine(m.Line, tx)
	case messages.GetSystemInfoResponse:
		return t.handleSystemInfoResponse(m, tx)
	case messages.GetTempDebugResponse:
		return t.handleTempDebugResponse(m, tx)
	case messages.GetPlateTempResponse:
		return t.handlePlateTempResponse(m, tx)
	case messages.AcknowledgePrevious:
		return t.handleAck(m, tx)
	case messages.ForceUSBDisconnect:
		t.mayConnect = false
		ack := messages.AcknowledgePrevious{RespondingToID: m.ID}
		if m.ReturnAddress == messages.SystemAddress {
			t.system.TrySend(ack)
		}
		return 0
	case messages.ErrorMessage:
		return t.writeError(tx, m.Code)
	}
	return 0
}

func (t *Task) handleLine(line string, tx []byte) int {
	code, err := gcode.Parse(line)
	if err != nil {
		return t.writeError(tx, errcode.UnhandledGCode)
	}
	if code == nil {
		// Empty line: consumed silently.
		return 0
	}

	id := t.allocID()
	switch c := code.(type) {
	case gcode.GetSystemInfo:
		return t.forwardSystem(tx, id, c, messages.GetSystemInfoMessage{ID: id})
	case gcode.SetSerialNumber:
		return t.forwardSystem(tx, id, c, messages.SetSerialNumberMessage{ID: id, SerialNumber: c.Serial})
	case gcode.EnterBootloader:
		// dfu has no text reply; fire and forget.
		if !t.system.TrySend(messages.EnterBootloaderMessage{ID: id}) {
			return t.writeError(tx, errcode.InternalQueueFull)
		}
		return 0
	case gcode.GetTempDebug:
		return t.forwardThermal(tx, id, c, messages.GetTempDebugMessage{ID: id})
	case gcode.SetPeltierDebug:
		return t.forwardThermal(tx, id, c, messages.SetPeltierDebugMessage{ID: id, Power: c.Power})
	case gcode.SetPlateTemperature:
		return t.forwardThermal(tx, id, c, messages.SetPlateTemperatureMessage{
			ID:       id,
			Setpoint: c.Setpoint,
			VolumeUL: c.VolumeUL,
			HoldTime: c.HoldTime,
			RampRate: c.RampRate,
		})
	case gcode.GetPlateTemp:
		return t.forwardThermal(tx, id, c, messages.GetPlateTempMessage{ID: id})
	case gcode.DeactivatePlate:
		return t.forwardThermal(tx, id, c, messages.DeactivatePlateMessage{ID: id})
	}
	return t.writeError(tx, errcode.UnhandledGCode)
}

func (t *Task) forwardSystem(tx []byte, id uint32, code gcode.GCode, msg messages.SystemMessage) int {
	if len(t.pending) == cap(t.pending) {
		return t.writeError(tx, errcode.GCodeCacheFull)
	}
	if !t.system.TrySend(msg) {
		return t.writeError(tx, errcode.InternalQueueFull)
	}
	t.pending = append(t.pending, pendingGCode{id: id, code: code})
	return 0
}

func (t *Task) forwardThermal(tx []byte, id uint32, code gcode.GCode, msg messages.ThermalMessage) int {
	if len(t.pending) == cap(t.pending) {
		return t.writeError(tx, errcode.GCodeCacheFull)
	}
	if !t.thermal.TrySend(msg) {
		return t.writeError(tx, errcode.InternalQueueFull)
	}
	t.pending = append(t.pending, pendingGCode{id: id, code: code})
	return 0
}

func (t *Task) handleSystemInfoResponse(m messages.GetSystemInfoResponse, tx []byte) int {
	idx := t.findPending(m.RespondingToID)
	if idx < 0 {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	if _, ok := t.pending[idx].code.(gcode.GetSystemInfo); !ok {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	t.removePending(idx)
	return t.writeString(tx, gcode.FormatSystemInfo(m.FWVersion, m.HWVersion, m.SerialNumber))
}

func (t *Task) handleTempDebugResponse(m messages.GetTempDebugResponse, tx []byte) int {
	idx := t.findPending(m.RespondingToID)
	if idx < 0 {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	if _, ok := t.pending[idx].code.(gcode.GetTempDebug); !ok {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	t.removePending(idx)
	return t.writeString(tx, gcode.FormatTempDebug(m.PlateTemp, m.HeatsinkTemp, m.PlateADC, m.HeatsinkADC))
}

func (t *Task) handlePlateTempResponse(m messages.GetPlateTempResponse, tx []byte) int {
	idx := t.findPending(m.RespondingToID)
	if idx < 0 {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	if _, ok := t.pending[idx].code.(gcode.GetPlateTemp); !ok {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	t.removePending(idx)
	return t.writeString(tx, gcode.FormatPlateTemp(m.TargetTemp, m.CurrentTemp))
}

func (t *Task) handleAck(m messages.AcknowledgePrevious, tx []byte) int {
	idx := t.findPending(m.RespondingToID)
	if idx < 0 {
		return t.writeError(tx, errcode.BadMessageAcknowledgement)
	}
	code := t.pending[idx].code
	t.removePending(idx)

	if m.WithError != errcode.NoError {
		return t.writeError(tx, m.WithError)
	}

	switch code.(type) {
	case gcode.SetSerialNumber:
		return t.writeString(tx, gcode.FormatSetSerialNumberAck())
	case gcode.SetPeltierDebug:
		return t.writeString(tx, gcode.FormatSetPeltierDebugAck())
	case gcode.SetPlateTemperature:
		return t.writeString(tx, gcode.FormatSetPlateTemperatureAck())
	case gcode.DeactivatePlate:
		return t.writeString(tx, gcode.FormatDeactivateAck())
	}
	// An ack for a command that expects a payload response is a protocol
	// error on the sender's part.
	return t.writeError(tx, errcode.BadMessageAcknowledgement)
}

func (t *Task) findPending(id uint32) int {
	for i := range t.pending {
		if t.pending[i].id == id {
			return i
		}
	}
	return -1
}

func (t *Task) removePending(idx int) {
	t.pending = append(t.pending[:idx], t.pending[idx+1:]...)
}

func (t *Task) allocID() uint32 {
	t.nextID++
	return t.nextID
}

// writeString copies s into tx. If the connection is disabled nothing is
// written; if s does not fit, a truncated tx-overrun error is written
// instead, filling only what fits.
func (t *Task) writeString(tx []byte, s string) int {
	if !t.mayConnect {
		return 0
	}
	if len(s) > len(tx) {
		return errcode.Write(tx, errcode.USBTXOverrun)
	}
	return copy(tx, s)
}

func (t *Task) writeError(tx []byte, c errcode.Code) int {
	return t.writeString(tx, c.String())
}
