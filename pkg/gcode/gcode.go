// Package gcode parses the host text protocol into typed commands and
// formats the matching response lines. One newline-terminated command per
// line in, one newline-terminated response line out.
package gcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnhandledGCode is returned for any line that does not parse into a
// known command.
var ErrUnhandledGCode = errors.New("unhandled gcode")

// GCode is one parsed host command.
type GCode interface{ gcode() }

// GetSystemInfo is M115: report firmware/hardware version and serial number.
type GetSystemInfo struct{}

// SetSerialNumber is M996: write a new serial number.
type SetSerialNumber struct {
	Serial string
}

// EnterBootloader is dfu: reboot into the bootloader. No text reply.
type EnterBootloader struct{}

// GetTempDebug is M105.D: report raw and converted thermistor readings.
type GetTempDebug struct{}

// SetPeltierDebug is M104.D S<power>: manual peltier drive in [-1, 1].
type SetPeltierDebug struct {
	Power float64
}

// SetPlateTemperature is M104 S<temp> [V<vol>] [H<hold>] [R<rate>]: start a
// closed-loop step. RampRate zero means unlimited.
type SetPlateTemperature struct {
	Setpoint float64
	VolumeUL float64
	HoldTime float64
	RampRate float64
}

// GetPlateTemp is M105: report target and current plate temperature.
type GetPlateTemp struct{}

// DeactivatePlate is M18: stop closed-loop control and disable outputs.
type DeactivatePlate struct{}

func (GetSystemInfo) gcode()       {}
func (SetSerialNumber) gcode()     {}
func (EnterBootloader) gcode()     {}
func (GetTempDebug) gcode()        {}
func (SetPeltierDebug) gcode()     {}
func (SetPlateTemperature) gcode() {}
func (GetPlateTemp) gcode()        {}
func (DeactivatePlate) gcode()     {}

// Parse tokenizes a single command line. An empty line returns (nil, nil)
// and produces no output. Unknown or malformed input returns
// ErrUnhandledGCode.
func Parse(line string) (GCode, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "M115":
		return GetSystemInfo{}, nil
	case "M996":
		if len(fields) != 2 || fields[1] == "" {
			return nil, ErrUnhandledGCode
		}
		return SetSerialNumber{Serial: fields[1]}, nil
	case "dfu":
		return EnterBootloader{}, nil
	case "M105.D":
		return GetTempDebug{}, nil
	case "M104.D":
		if len(fields) != 2 {
			return nil, ErrUnhandledGCode
		}
		power, err := prefixedFloat(fields[1], 'S')
		if err != nil {
			return nil, ErrUnhandledGCode
		}
		return SetPeltierDebug{Power: power}, nil
	case "M104":
		return parseSetPlateTemperature(fields[1:])
	case "M105":
		return GetPlateTemp{}, nil
	case "M18":
		return DeactivatePlate{}, nil
	}
	return nil, ErrUnhandledGCode
}

func parseSetPlateTemperature(args []string) (GCode, error) {
	if len(args) == 0 {
		return nil, ErrUnhandledGCode
	}
	cmd := SetPlateTemperature{}
	sawSetpoint := false
	for _, arg := range args {
		if arg == "" {
			return nil, ErrUnhandledGCode
		}
		value, err := prefixedFloat(arg, rune(arg[0]))
		if err != nil {
			return nil, ErrUnhandledGCode
		}
		switch arg[0] {
		case 'S':
			cmd.Setpoint = value
			sawSetpoint = true
		case 'V':
			cmd.VolumeUL = value
		case 'H':
			cmd.HoldTime = value
		case 'R':
			cmd.RampRate = value
		default:
			return nil, ErrUnhandledGCode
		}
	}
	if !sawSetpoint {
		return nil, ErrUnhandledGCode
	}
	return cmd, nil
}

func prefixedFloat(field string, prefix rune) (float64, error) {
	if len(field) < 2 || rune(field[0]) != prefix {
		return 0, ErrUnhandledGCode
	}
	value, err := strconv.ParseFloat(field[1:], 64)
	if err != nil {
		return 0, ErrUnhandledGCode
	}
	return value, nil
}

// Response formatting. Each command's success reply is fixed-format; error
// replies are rendered from the errcode table by the comms task instead.

// FormatSystemInfo renders the M115 success reply.
func FormatSystemInfo(fw, hw, serial string) string {
	return fmt.Sprintf("M115 FW:%s HW:%s SerialNo:%s OK\n", fw, hw, serial)
}

// FormatSetSerialNumberAck renders the M996 success reply.
func FormatSetSerialNumberAck() string {
	return "M996 OK\n"
}

// FormatTempDebug renders the M105.D success reply.
func FormatTempDebug(plateTemp, heatsinkTemp float64, plateADC, heatsinkADC uint16) string {
	return fmt.Sprintf("M105.D PT:%.2f HST:%.2f PA:%d HSA:%d OK\n",
		plateTemp, heatsinkTemp, plateADC, heatsinkADC)
}

// FormatSetPeltierDebugAck renders the M104.D success reply.
func FormatSetPeltierDebugAck() string {
	return "M104.D OK\n"
}

// FormatSetPlateTemperatureAck renders the M104 success reply.
func FormatSetPlateTemperatureAck() string {
	return "M104 OK\n"
}

// FormatPlateTemp renders the M105 success reply.
func FormatPlateTemp(target, current float64) string {
	return fmt.Sprintf("M105 T:%.2f C:%.2f OK\n", target, current)
}

// FormatDeactivateAck renders the M18 success reply.
func FormatDeactivateAck() string {
	return "M18 OK\n"
}
