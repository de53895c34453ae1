// Package protocol defines the control message exchanged between the
// transmitter and the bridge, and the actuation frame the bridge writes to the
// vehicle controller.
package protocol

import (
	"fmt"
	"math"

	"github.com/banshee-data/rclink/internal/profile"
)

// ControlCommand is one control sample as carried on the wire.
type ControlCommand struct {
	Steering  float64 // -1 full left .. +1 full right
	Throttle  float64 // 0..1
	Brake     float64 // 0..1
	Handbrake float64 // 0..1, on above 0.5
	Turbo     float64 // 0..1, on above 0.5
	Mode      profile.DrivingMode
}

// flagThreshold is the level above which a [0,1] flag channel reads as on.
const flagThreshold = 0.5

// failsafeCommand centres steering, cuts throttle and applies full brake.
var failsafeCommand = ControlCommand{
	Steering:  0,
	Throttle:  0,
	Brake:     1,
	Handbrake: 0,
	Turbo:     0,
	Mode:      profile.ModeNormal,
}

// Failsafe returns the fixed safe command. It is the single definition used by
// the transmitter's stop path and, through FailsafeFrame, by the bridge.
func Failsafe() ControlCommand { return failsafeCommand }

// HandbrakeOn reports whether the handbrake channel is engaged.
func (c ControlCommand) HandbrakeOn() bool { return c.Handbrake > flagThreshold }

// TurboOn reports whether the turbo channel is engaged.
func (c ControlCommand) TurboOn() bool { return c.Turbo > flagThreshold }

// Validate reports the first field that is out of range. Invalid commands are
// discarded whole; they are never clamped into range.
func (c ControlCommand) Validate() error {
	fields := []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"steering", c.Steering, -1, 1},
		{"throttle", c.Throttle, 0, 1},
		{"brake", c.Brake, 0, 1},
		{"handbrake", c.Handbrake, 0, 1},
		{"turbo", c.Turbo, 0, 1},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || f.v < f.lo || f.v > f.hi {
			return fmt.Errorf("%s %v out of range [%v, %v]", f.name, f.v, f.lo, f.hi)
		}
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}
