package profile

// Engine shapes throttle and steering for one control loop. It holds the last
// applied value of each channel for rate limiting. An Engine is owned by a
// single goroutine and is not safe for concurrent use.
//
// The per-tick delta limits hold while the profile stays the same. When the
// profile changes, the output is clamped to the new ceiling at once, so that
// one tick can move further than MaxThrottleDeltaPerTick or
// MaxSteeringDeltaPerTick.
type Engine struct {
	throttle float64
	steering float64
}

// NewEngine returns an engine with both channels at rest.
func NewEngine() *Engine {
	return &Engine{}
}

// Throttle shapes a unit throttle request in [0,1]: deadzone, response curve,
// mode ceiling, then per-tick rate limit. The result is always within
// [0, p.MaxThrottle].
func (e *Engine) Throttle(raw float64, p DrivingProfile) float64 {
	return e.ThrottleWithGain(raw, 1, p)
}

// ThrottleWithGain is Throttle with the shaped target multiplied by gain
// before the rate limit. The target is capped at p.MaxThrottle, so a boost
// never lifts the mode ceiling or skips the ramp.
func (e *Engine) ThrottleWithGain(raw, gain float64, p DrivingProfile) float64 {
	v := Clamp(raw, 0, 1)
	v = ApplyDeadzone(v, p.Deadzone)
	v = ApplyCurve(v, p.ThrottleCurveExponent)
	target := Clamp(v*p.MaxThrottle*gain, 0, p.MaxThrottle)

	out := StepToward(e.throttle, target, p.MaxThrottleDeltaPerTick)
	// A mode change can lower the ceiling below the ramp state.
	out = Clamp(out, 0, p.MaxThrottle)
	e.throttle = out
	return out
}

// Steering shapes a steering request in [-1,1]: deadzone, linear scale by the
// steering limit, then per-tick rate limit. Steering has no response curve.
// The result is always within [-p.SteeringLimit, p.SteeringLimit].
func (e *Engine) Steering(raw float64, p DrivingProfile) float64 {
	v := Clamp(raw, -1, 1)
	v = ApplyDeadzone(v, p.Deadzone)
	target := v * p.SteeringLimit

	out := StepToward(e.steering, target, p.MaxSteeringDeltaPerTick)
	out = Clamp(out, -p.SteeringLimit, p.SteeringLimit)
	e.steering = out
	return out
}

// Reset returns both channels to rest.
func (e *Engine) Reset() {
	e.throttle = 0
	e.steering = 0
}

// Last returns the most recent throttle and steering outputs.
func (e *Engine) Last() (throttle, steering float64) {
	return e.throttle, e.steering
}
