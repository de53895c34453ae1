package protocol

import (
	"math"
	"strconv"
)

// ActuationFrame is the device-ready form of a command for the vehicle
// controller's serial link.
type ActuationFrame struct {
	SteeringAngle   int // degrees, 0 full left, 90 centre, 180 full right
	ThrottlePercent int
	BrakePercent    int
	Handbrake       bool
	Turbo           bool
}

// FailsafeFrame is the frame for the failsafe command: "90,0,100,0,0".
var FailsafeFrame = FrameFromCommand(Failsafe())

// FrameFromCommand derives the actuation frame for cmd. Every field is clamped
// to its device range as a last line of defence even though cmd is expected to
// be valid.
func FrameFromCommand(cmd ControlCommand) ActuationFrame {
	return ActuationFrame{
		SteeringAngle:   clampInt(int(math.Round((cmd.Steering+1)*90)), 0, 180),
		ThrottlePercent: percent(cmd.Throttle),
		BrakePercent:    percent(cmd.Brake),
		Handbrake:       cmd.HandbrakeOn(),
		Turbo:           cmd.TurboOn(),
	}
}

// Bytes renders the frame as "angle,throttle,brake,handbrake,turbo\n".
func (f ActuationFrame) Bytes() []byte {
	b := make([]byte, 0, 20)
	b = strconv.AppendInt(b, int64(f.SteeringAngle), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(f.ThrottlePercent), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(f.BrakePercent), 10)
	b = append(b, ',', flag(f.Handbrake), ',', flag(f.Turbo), '\n')
	return b
}

func (f ActuationFrame) String() string { return string(f.Bytes()) }

// IsFailsafe reports whether f equals the failsafe frame.
func (f ActuationFrame) IsFailsafe() bool { return f == FailsafeFrame }

func percent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return clampInt(int(math.Round(v*100)), 0, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func flag(on bool) byte {
	if on {
		return '1'
	}
	return '0'
}
