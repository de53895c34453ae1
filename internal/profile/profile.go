// Package profile maps raw control axis readings to bounded, mode-shaped
// throttle and steering values.
package profile

import "fmt"

// DrivingProfile bounds how aggressively the vehicle responds in one mode.
// Every bound lies in [0,1] and the curve exponent is at least 1.
type DrivingProfile struct {
	Mode                    DrivingMode
	ThrottleCurveExponent   float64
	MaxThrottle             float64
	SteeringLimit           float64
	MaxThrottleDeltaPerTick float64
	MaxSteeringDeltaPerTick float64
	Deadzone                float64
	Description             string
}

var profiles = map[DrivingMode]DrivingProfile{
	ModeKid: {
		Mode:                    ModeKid,
		ThrottleCurveExponent:   2.2,
		MaxThrottle:             0.35,
		SteeringLimit:           0.60,
		MaxThrottleDeltaPerTick: 0.05,
		MaxSteeringDeltaPerTick: 0.10,
		Deadzone:                0.12,
		Description:             "limited acceleration and softened steering",
	},
	ModeNormal: {
		Mode:                    ModeNormal,
		ThrottleCurveExponent:   1.8,
		MaxThrottle:             0.70,
		SteeringLimit:           0.85,
		MaxThrottleDeltaPerTick: 0.08,
		MaxSteeringDeltaPerTick: 0.25,
		Deadzone:                0.08,
		Description:             "balanced driving",
	},
	ModeSport: {
		Mode:                    ModeSport,
		ThrottleCurveExponent:   1.3,
		MaxThrottle:             1.0,
		SteeringLimit:           1.0,
		MaxThrottleDeltaPerTick: 0.15,
		MaxSteeringDeltaPerTick: 0.50,
		Deadzone:                0.05,
		Description:             "fast, full-range response",
	},
}

// Lookup returns the profile for mode. Unknown modes resolve to the normal
// profile; lookup never fails.
func Lookup(mode DrivingMode) DrivingProfile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[DefaultMode]
}

// LookupString resolves a raw mode name, as read from external configuration.
func LookupString(s string) DrivingProfile {
	m, ok := ParseMode(s)
	if !ok {
		return profiles[DefaultMode]
	}
	return Lookup(m)
}

// Validate checks the profile invariants.
func (p DrivingProfile) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("unknown driving mode %q", p.Mode)
	}
	if p.ThrottleCurveExponent < 1 {
		return fmt.Errorf("%s: throttle curve exponent must be >= 1, got %f", p.Mode, p.ThrottleCurveExponent)
	}
	bounds := []struct {
		name string
		v    float64
	}{
		{"max_throttle", p.MaxThrottle},
		{"steering_limit", p.SteeringLimit},
		{"max_throttle_delta", p.MaxThrottleDeltaPerTick},
		{"max_steering_delta", p.MaxSteeringDeltaPerTick},
		{"deadzone", p.Deadzone},
	}
	for _, b := range bounds {
		if b.v < 0 || b.v > 1 {
			return fmt.Errorf("%s: %s must be between 0 and 1, got %f", p.Mode, b.name, b.v)
		}
	}
	if p.Deadzone >= 1 {
		return fmt.Errorf("%s: deadzone must be below 1, got %f", p.Mode, p.Deadzone)
	}
	return nil
}
