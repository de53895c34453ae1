package bridge

import (
	"sync"

	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/protocol"
)

// DeltaLimiter bounds how far steering and throttle may move between two
// consecutive commands on the receiving side. The bounds are looser than the
// transmitter's ramp so a well-behaved sender is never visibly slowed, while a
// misbehaving one cannot slam the servos.
//
// The session writes through Apply and the watchdog calls Reset, so the state
// is guarded by a mutex.
type DeltaLimiter struct {
	maxSteering float64
	maxThrottle float64

	mu       sync.Mutex
	steering float64
	throttle float64
}

// NewDeltaLimiter returns a limiter at rest.
func NewDeltaLimiter(maxSteering, maxThrottle float64) *DeltaLimiter {
	return &DeltaLimiter{maxSteering: maxSteering, maxThrottle: maxThrottle}
}

// Apply steps the limiter toward cmd and returns cmd with the limited
// steering and throttle. Brake, handbrake and turbo pass through unchanged so
// braking is never delayed.
func (l *DeltaLimiter) Apply(cmd protocol.ControlCommand) protocol.ControlCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steering = profile.StepToward(l.steering, cmd.Steering, l.maxSteering)
	l.throttle = profile.StepToward(l.throttle, cmd.Throttle, l.maxThrottle)
	cmd.Steering = l.steering
	cmd.Throttle = l.throttle
	return cmd
}

// Reset returns both channels to neutral.
func (l *DeltaLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steering = 0
	l.throttle = 0
}

// Last returns the most recently applied steering and throttle.
func (l *DeltaLimiter) Last() (steering, throttle float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steering, l.throttle
}
