package errcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want string
	}{
		{"tx overrun", USBTXOverrun, "ERR001:tx buffer overrun\n"},
		{"queue full", InternalQueueFull, "ERR002:internal queue full\n"},
		{"unhandled gcode", UnhandledGCode, "ERR003:unhandled gcode\n"},
		{"gcode cache full", GCodeCacheFull, "ERR004:gcode cache full\n"},
		{"bad ack", BadMessageAcknowledgement, "ERR005:bad message acknowledgement\n"},
		{"serial invalid", SystemSerialNumberInvalid, "ERR301:system serial number invalid\n"},
		{"peltier error", ThermalPeltierError, "ERR401:thermal peltier error\n"},
		{"peltier power", ThermalPeltierPowerError, "ERR402:thermal peltier power out of range\n"},
		{"drift", ThermalDriftError, "ERR406:thermal thermistor drift\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestStringUnknownCode(t *testing.T) {
	assert.Equal(t, "ERR999:unknown error\n", Code(999).String())
}

func TestWriteFits(t *testing.T) {
	buf := make([]byte, 64)
	n := Write(buf, UnhandledGCode)
	assert.Equal(t, "ERR003:unhandled gcode\n", string(buf[:n]))
}

func TestWriteTruncates(t *testing.T) {
	// 15 usable bytes must yield exactly the first 15 bytes of the line.
	buf := make([]byte, 15)
	n := Write(buf, USBTXOverrun)
	assert.Equal(t, 15, n)
	assert.Equal(t, "ERR001:tx buffe", string(buf[:n]))
}

func TestWriteEmptyBuffer(t *testing.T) {
	n := Write(nil, USBTXOverrun)
	assert.Equal(t, 0, n)
}
