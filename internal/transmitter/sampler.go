package transmitter

import (
	"github.com/banshee-data/rclink/internal/input"
	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/protocol"
)

const (
	// TurboGain multiplies the shaped throttle while turbo is latched.
	TurboGain = 1.30
	// pedalDeadzonePct is the brake and handbrake pedal deadzone.
	pedalDeadzonePct = 5
)

// Sampler turns device snapshots into control commands. It owns the ramp
// state and the turbo latch for one control loop.
type Sampler struct {
	axes   input.AxisMap
	engine *profile.Engine

	turbo     bool
	turboPrev bool
	lastCmd   protocol.ControlCommand
}

// NewSampler returns a sampler reading controls through axes.
func NewSampler(axes input.AxisMap) *Sampler {
	return &Sampler{
		axes:    axes,
		engine:  profile.NewEngine(),
		lastCmd: protocol.Failsafe(),
	}
}

// Build derives the command for one tick. The active mode is looked up every
// call so a mode change applies on the next tick. A command that fails
// validation is replaced with the failsafe command.
func (s *Sampler) Build(snap input.Snapshot, mode profile.DrivingMode) protocol.ControlCommand {
	p := profile.Lookup(mode)
	c := s.axes.Read(snap)

	// Turbo toggles on the press, not while held.
	if c.Turbo && !s.turboPrev {
		s.turbo = !s.turbo
	}
	s.turboPrev = c.Turbo

	gain := 1.0
	if s.turbo {
		gain = TurboGain
	}

	cmd := protocol.ControlCommand{
		Steering:  s.engine.Steering(c.Steering, p),
		Throttle:  s.engine.ThrottleWithGain(profile.PedalToUnit(c.Throttle), gain, p),
		Brake:     float64(profile.PercentFromAxis(c.Brake, pedalDeadzonePct)) / 100,
		Handbrake: float64(profile.PercentFromAxis(c.Handbrake, pedalDeadzonePct)) / 100,
		Mode:      p.Mode,
	}
	if s.turbo {
		cmd.Turbo = 1
	}

	if cmd.Validate() != nil {
		cmd = protocol.Failsafe()
	}
	s.lastCmd = cmd
	return cmd
}

// Reset returns the ramp to rest. The turbo latch is kept.
func (s *Sampler) Reset() {
	s.engine.Reset()
}

// TurboLatched reports whether turbo is on.
func (s *Sampler) TurboLatched() bool { return s.turbo }

// Last returns the most recently built command.
func (s *Sampler) Last() protocol.ControlCommand { return s.lastCmd }
