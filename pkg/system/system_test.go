package system

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morefigs/opentrons-modules/pkg/errcode"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/queue"
	"github.com/morefigs/opentrons-modules/pkg/version"
)

type testPolicy struct {
	serial          string
	serialErr       error
	bootloaderCalls int
}

func (p *testPolicy) GetSerialNumber() string { return p.serial }

func (p *testPolicy) SetSerialNumber(serial string) error {
	if p.serialErr != nil {
		return p.serialErr
	}
	p.serial = serial
	return nil
}

func (p *testPolicy) EnterBootloader() { p.bootloaderCalls++ }

type fixture struct {
	task   *Task
	sysQ   *queue.Queue[messages.SystemMessage]
	comms  *queue.Queue[messages.HostCommsMessage]
	policy *testPolicy
}

func newFixture() *fixture {
	sysQ := queue.New[messages.SystemMessage](8)
	commsQ := queue.New[messages.HostCommsMessage](8)
	return &fixture{
		task:   New(sysQ, commsQ),
		sysQ:   sysQ,
		comms:  commsQ,
		policy: &testPolicy{serial: "TC2101"},
	}
}

func (f *fixture) run(t *testing.T, msg messages.SystemMessage) messages.HostCommsMessage {
	t.Helper()
	require.True(t, f.sysQ.TrySend(msg))
	require.True(t, f.task.RunOnce(f.policy))
	reply, ok := f.comms.TryRecv()
	require.True(t, ok)
	return reply
}

func TestRunOnceEmptyQueue(t *testing.T) {
	f := newFixture()
	assert.False(t, f.task.RunOnce(f.policy))
}

func TestGetSystemInfo(t *testing.T) {
	f := newFixture()

	reply := f.run(t, messages.GetSystemInfoMessage{ID: 3})

	resp, ok := reply.(messages.GetSystemInfoResponse)
	require.True(t, ok)
	assert.Equal(t, uint32(3), resp.RespondingToID)
	assert.Equal(t, "TC2101", resp.SerialNumber)
	assert.Equal(t, version.Firmware, resp.FWVersion)
	assert.Equal(t, version.Hardware, resp.HWVersion)
}

func TestSetSerialNumber(t *testing.T) {
	f := newFixture()

	reply := f.run(t, messages.SetSerialNumberMessage{ID: 4, SerialNumber: "TC2102"})

	ack, ok := reply.(messages.AcknowledgePrevious)
	require.True(t, ok)
	assert.Equal(t, uint32(4), ack.RespondingToID)
	assert.Equal(t, errcode.NoError, ack.WithError)
	assert.Equal(t, "TC2102", f.policy.serial)
}

func TestSetSerialNumberRejected(t *testing.T) {
	f := newFixture()
	f.policy.serialErr = errors.New("write failed")

	reply := f.run(t, messages.SetSerialNumberMessage{ID: 5, SerialNumber: "x"})

	ack, ok := reply.(messages.AcknowledgePrevious)
	require.True(t, ok)
	assert.Equal(t, errcode.SystemSerialNumberInvalid, ack.WithError)
	assert.Equal(t, "TC2101", f.policy.serial)
}

func TestBootloaderHandshake(t *testing.T) {
	f := newFixture()

	// The request first asks host-comms to drop the USB connection.
	reply := f.run(t, messages.EnterBootloaderMessage{ID: 6})
	disc, ok := reply.(messages.ForceUSBDisconnect)
	require.True(t, ok)
	assert.Equal(t, messages.SystemAddress, disc.ReturnAddress)
	assert.Zero(t, f.policy.bootloaderCalls)

	// Only the matching disconnect ack triggers the reboot.
	require.True(t, f.sysQ.TrySend(messages.AcknowledgePrevious{RespondingToID: disc.ID + 1}))
	require.True(t, f.task.RunOnce(f.policy))
	assert.Zero(t, f.policy.bootloaderCalls)

	require.True(t, f.sysQ.TrySend(messages.AcknowledgePrevious{RespondingToID: disc.ID}))
	require.True(t, f.task.RunOnce(f.policy))
	assert.Equal(t, 1, f.policy.bootloaderCalls)

	// A stray duplicate ack does not reboot twice.
	require.True(t, f.sysQ.TrySend(messages.AcknowledgePrevious{RespondingToID: disc.ID}))
	require.True(t, f.task.RunOnce(f.policy))
	assert.Equal(t, 1, f.policy.bootloaderCalls)
}
