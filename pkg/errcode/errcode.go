// Package errcode defines the fixed error code table shared between the
// firmware tasks and the host text protocol. Codes render as
// "ERR<NNN>:<description>\n" and are stable across firmware revisions, so
// hosts can match on the numeric prefix.
package errcode

import "fmt"

// Code identifies one entry in the error table. The zero value means no error.
type Code uint16

const (
	NoError      Code = 0
	USBTXOverrun Code = 1
	// InternalQueueFull is reported when a command could not be forwarded
	// because the target task's queue was full.
	InternalQueueFull         Code = 2
	UnhandledGCode            Code = 3
	GCodeCacheFull            Code = 4
	BadMessageAcknowledgement Code = 5

	SystemSerialNumberInvalid Code = 301

	ThermalPeltierError      Code = 401
	ThermalPeltierPowerError Code = 402
	ThermalHeatsinkFanError  Code = 403
	ThermalThermistorError   Code = 404
	ThermalPlateBusy         Code = 405
	ThermalDriftError        Code = 406
)

var descriptions = map[Code]string{
	USBTXOverrun:              "tx buffer overrun",
	InternalQueueFull:         "internal queue full",
	UnhandledGCode:            "unhandled gcode",
	GCodeCacheFull:            "gcode cache full",
	BadMessageAcknowledgement: "bad message acknowledgement",

	SystemSerialNumberInvalid: "system serial number invalid",

	ThermalPeltierError:      "thermal peltier error",
	ThermalPeltierPowerError: "thermal peltier power out of range",
	ThermalHeatsinkFanError:  "thermal heatsink fan error",
	ThermalThermistorError:   "thermal thermistor read error",
	ThermalPlateBusy:         "thermal plate busy",
	ThermalDriftError:        "thermal thermistor drift",
}

// String renders the full newline-terminated protocol line for the code.
// NoError and unknown codes render as an unknown-error line rather than
// panicking; callers are expected to check for NoError first.
func (c Code) String() string {
	desc, ok := descriptions[c]
	if !ok {
		desc = "unknown error"
	}
	return fmt.Sprintf("ERR%03d:%s\n", uint16(c), desc)
}

// Write copies the rendered error line into buf, truncating to the buffer
// capacity. It returns the number of bytes written. Truncation is deliberate:
// a partial error line is better than overflowing a caller-owned tx buffer.
func Write(buf []byte, c Code) int {
	return copy(buf, c.String())
}
