// Package system implements the system task: device identity queries and
// lifecycle actions that do not belong to any one subsystem.
package system

import (
	"github.com/morefigs/opentrons-modules/pkg/errcode"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/queue"
	"github.com/morefigs/opentrons-modules/pkg/version"
)

// Policy is the hardware-facing collaborator: the persisted identity store
// and the bootloader entry hook.
type Policy interface {
	GetSerialNumber() string
	SetSerialNumber(serial string) error
	EnterBootloader()
}

// Task is the system task.
type Task struct {
	queue *queue.Queue[messages.SystemMessage]
	comms *queue.Queue[messages.HostCommsMessage]

	nextID uint32
	// Bootloader entry waits for host-comms to confirm the USB disconnect.
	disconnectID      uint32
	disconnectPending bool
}

// New wires a system task to its queue and the host-comms queue it replies
// through.
func New(
	q *queue.Queue[messages.SystemMessage],
	comms *queue.Queue[messages.HostCommsMessage],
) *Task {
	return &Task{queue: q, comms: comms}
}

// RunOnce processes at most one inbound message. It returns false when the
// queue was empty.
func (t *Task) RunOnce(policy Policy) bool {
	msg, ok := t.queue.TryRecv()
	if !ok {
		return false
	}

	switch m := msg.(type) {
	case messages.GetSystemInfoMessage:
		t.comms.TrySend(messages.GetSystemInfoResponse{
			RespondingToID: m.ID,
			SerialNumber:   policy.GetSerialNumber(),
			FWVersion:      version.Firmware,
			HWVersion:      version.Hardware,
		})
	case messages.SetSerialNumberMessage:
		code := errcode.NoError
		if err := policy.SetSerialNumber(m.SerialNumber); err != nil {
			code = errcode.SystemSerialNumberInvalid
		}
		t.comms.TrySend(messages.AcknowledgePrevious{
			RespondingToID: m.ID,
			WithError:      code,
		})
	case messages.EnterBootloaderMessage:
		// The USB connection must be down before rebooting into DFU; ask
		// host-comms to disconnect and wait for its ack.
		t.nextID++
		t.disconnectID = t.nextID
		t.disconnectPending = true
		t.comms.TrySend(messages.ForceUSBDisconnect{
			ID:            t.disconnectID,
			ReturnAddress: messages.SystemAddress,
		})
	case messages.AcknowledgePrevious:
		if t.disconnectPending && m.RespondingToID == t.disconnectID {
			t.disconnectPending = false
			policy.EnterBootloader()
		}
	}
	return true
}
