// Package messages is the closed catalog of payloads exchanged between tasks.
// Every request carries a monotonically-unique correlation id; the matching
// response echoes it back in RespondingToID. Readings events carry no id,
// they are fire-and-forget telemetry.
//
// Each task consumes its own variant set, expressed as a marker interface so
// that a queue can only ever hold messages its owner knows how to handle.
package messages

import "github.com/morefigs/opentrons-modules/pkg/errcode"

// TaskAddress names a task's queue for reply routing.
type TaskAddress uint8

const (
	NoAddress TaskAddress = iota
	HostAddress
	SystemAddress
	ThermalAddress
)

// HostCommsMessage is the variant set accepted by the host-comms task.
type HostCommsMessage interface{ hostCommsMessage() }

// SystemMessage is the variant set accepted by the system task.
type SystemMessage interface{ systemMessage() }

// ThermalMessage is the variant set accepted by the thermal task.
type ThermalMessage interface{ thermalMessage() }

// IncomingMessageFromHost carries one newline-terminated command line as
// received from the serial connection.
type IncomingMessageFromHost struct {
	Line string
}

// AcknowledgePrevious is the generic completion ack for a request that has no
// payload of its own. WithError is NoError on success.
type AcknowledgePrevious struct {
	RespondingToID uint32
	WithError      errcode.Code
}

// ErrorMessage is an unsolicited error pushed to the host, e.g. a thermistor
// drift fault detected mid-run.
type ErrorMessage struct {
	Code errcode.Code
}

// ForceUSBDisconnect tells the host-comms task to drop the serial connection
// and stop transmitting. The ack goes to ReturnAddress.
type ForceUSBDisconnect struct {
	ID            uint32
	ReturnAddress TaskAddress
}

// GetSystemInfoMessage requests the device identity.
type GetSystemInfoMessage struct {
	ID uint32
}

// GetSystemInfoResponse answers GetSystemInfoMessage.
type GetSystemInfoResponse struct {
	RespondingToID uint32
	SerialNumber   string
	FWVersion      string
	HWVersion      string
}

// SetSerialNumberMessage writes a new serial number to the identity store.
type SetSerialNumberMessage struct {
	ID           uint32
	SerialNumber string
}

// EnterBootloaderMessage requests a reboot into the DFU bootloader.
type EnterBootloaderMessage struct {
	ID uint32
}

// ThermistorReadings is the periodic raw sample from the thermal ADC.
// Timestamp is the tick count at sample time.
type ThermistorReadings struct {
	Timestamp uint32
	Plate     uint16
	Heatsink  uint16
}

// GetTempDebugMessage requests the latest raw and converted readings.
type GetTempDebugMessage struct {
	ID uint32
}

// GetTempDebugResponse answers GetTempDebugMessage.
type GetTempDebugResponse struct {
	RespondingToID uint32
	PlateTemp      float64
	HeatsinkTemp   float64
	PlateADC       uint16
	HeatsinkADC    uint16
}

// SetPeltierDebugMessage manually drives the peltiers, bypassing closed-loop
// control. Power is in [-1, 1]; the sign selects heating vs cooling and zero
// disables the drive.
type SetPeltierDebugMessage struct {
	ID    uint32
	Power float64
}

// SetPlateTemperatureMessage starts a closed-loop step toward Setpoint.
// A RampRate of zero means unlimited (jump immediately).
type SetPlateTemperatureMessage struct {
	ID       uint32
	Setpoint float64
	VolumeUL float64
	HoldTime float64
	RampRate float64
}

// GetPlateTempMessage requests the plate target and current temperature.
type GetPlateTempMessage struct {
	ID uint32
}

// GetPlateTempResponse answers GetPlateTempMessage. TargetTemp is zero when
// the plate is idle.
type GetPlateTempResponse struct {
	RespondingToID uint32
	TargetTemp     float64
	CurrentTemp    float64
}

// DeactivatePlateMessage stops closed-loop control and disables all thermal
// outputs.
type DeactivatePlateMessage struct {
	ID uint32
}

func (IncomingMessageFromHost) hostCommsMessage() {}
func (AcknowledgePrevious) hostCommsMessage()     {}
func (ErrorMessage) hostCommsMessage()            {}
func (ForceUSBDisconnect) hostCommsMessage()      {}
func (GetSystemInfoResponse) hostCommsMessage()   {}
func (GetTempDebugResponse) hostCommsMessage()    {}
func (GetPlateTempResponse) hostCommsMessage()    {}

func (GetSystemInfoMessage) systemMessage()   {}
func (SetSerialNumberMessage) systemMessage() {}
func (EnterBootloaderMessage) systemMessage() {}
func (AcknowledgePrevious) systemMessage()    {}

func (ThermistorReadings) thermalMessage()         {}
func (GetTempDebugMessage) thermalMessage()        {}
func (SetPeltierDebugMessage) thermalMessage()     {}
func (SetPlateTemperatureMessage) thermalMessage() {}
func (GetPlateTempMessage) thermalMessage()        {}
func (DeactivatePlateMessage) thermalMessage()     {}
