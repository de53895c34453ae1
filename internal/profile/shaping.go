package profile

import "math"

// Clamp limits v to [lo, hi]. NaN is treated as lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyDeadzone zeroes values whose magnitude is below dz and rescales the
// remaining range linearly back to full scale, so the output is continuous at
// the deadzone boundary. The sign of v is preserved.
func ApplyDeadzone(v, dz float64) float64 {
	mag := math.Abs(v)
	if mag < dz || mag == 0 {
		return 0
	}
	if dz <= 0 {
		return v
	}
	scaled := (mag - dz) / (1 - dz)
	return math.Copysign(Clamp(scaled, 0, 1), v)
}

// ApplyCurve raises |v| to exp while keeping the sign. An exponent above 1
// softens the low end of the response.
func ApplyCurve(v, exp float64) float64 {
	if v == 0 {
		return 0
	}
	return math.Copysign(math.Pow(math.Abs(v), exp), v)
}

// StepToward moves current toward target by at most maxDelta.
func StepToward(current, target, maxDelta float64) float64 {
	delta := target - current
	if math.Abs(delta) <= maxDelta {
		return target
	}
	if delta > 0 {
		return current + maxDelta
	}
	return current - maxDelta
}

// PedalToUnit converts a pedal axis where +1 is released and -1 is fully
// pressed into a [0,1] travel value.
func PedalToUnit(axis float64) float64 {
	return Clamp((1-axis)/2, 0, 1)
}

// PercentFromAxis converts a pedal axis using the wheel's native percentage
// formula (1-axis)*100. Results below deadzonePct read as zero and the value
// saturates at 100, so the pedal reaches full scale at half travel.
func PercentFromAxis(axis float64, deadzonePct int) int {
	pct := int((1 - axis) * 100)
	if pct < deadzonePct {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
