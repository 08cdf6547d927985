package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want GCode
	}{
		{"system info", "M115", GetSystemInfo{}},
		{"system info trailing space", "M115 ", GetSystemInfo{}},
		{"set serial", "M996 TC2101", SetSerialNumber{Serial: "TC2101"}},
		{"bootloader", "dfu", EnterBootloader{}},
		{"temp debug", "M105.D", GetTempDebug{}},
		{"peltier debug", "M104.D S0.5", SetPeltierDebug{Power: 0.5}},
		{"peltier debug negative", "M104.D S-1", SetPeltierDebug{Power: -1}},
		{"set temp minimal", "M104 S94", SetPlateTemperature{Setpoint: 94}},
		{
			"set temp full", "M104 S4 V25 H600 R2.5",
			SetPlateTemperature{Setpoint: 4, VolumeUL: 25, HoldTime: 600, RampRate: 2.5},
		},
		{
			"set temp reordered", "M104 H60 S37.5",
			SetPlateTemperature{Setpoint: 37.5, HoldTime: 60},
		},
		{"plate temp", "M105", GetPlateTemp{}},
		{"deactivate", "M18", DeactivatePlate{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEmptyLine(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		got, err := Parse(line)
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestParseUnhandled(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown command", "M999"},
		{"garbage", "hello world"},
		{"serial without argument", "M996"},
		{"serial with extra argument", "M996 abc def"},
		{"peltier without power", "M104.D"},
		{"peltier bad prefix", "M104.D P0.5"},
		{"peltier bad number", "M104.D Sxyz"},
		{"set temp without args", "M104"},
		{"set temp without setpoint", "M104 V25 H600"},
		{"set temp unknown arg", "M104 S50 Q1"},
		{"set temp bad number", "M104 Sfour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			assert.ErrorIs(t, err, ErrUnhandledGCode)
			assert.Nil(t, got)
		})
	}
}

func TestFormatResponses(t *testing.T) {
	assert.Equal(t, "M115 FW:def HW:ghi SerialNo:abc OK\n",
		FormatSystemInfo("def", "ghi", "abc"))
	assert.Equal(t, "M996 OK\n", FormatSetSerialNumberAck())
	assert.Equal(t, "M105.D PT:1.00 HST:2.00 PA:123 HSA:456 OK\n",
		FormatTempDebug(1, 2, 123, 456))
	assert.Equal(t, "M104.D OK\n", FormatSetPeltierDebugAck())
	assert.Equal(t, "M104 OK\n", FormatSetPlateTemperatureAck())
	assert.Equal(t, "M105 T:94.00 C:22.25 OK\n", FormatPlateTemp(94, 22.25))
	assert.Equal(t, "M18 OK\n", FormatDeactivateAck())
}
