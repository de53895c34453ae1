package profile

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestEngine_OutputWithinProfileBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, m := range Modes() {
		p := Lookup(m)
		e := NewEngine()
		for i := 0; i < 5000; i++ {
			// includes values outside the declared domain
			th := e.Throttle(rng.Float64()*3-1, p)
			st := e.Steering(rng.Float64()*4-2, p)
			require.GreaterOrEqual(t, th, 0.0, "mode %s", m)
			require.LessOrEqual(t, th, p.MaxThrottle+eps, "mode %s", m)
			require.LessOrEqual(t, math.Abs(st), p.SteeringLimit+eps, "mode %s", m)
		}
	}
}

func TestEngine_RateLimitHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, m := range Modes() {
		p := Lookup(m)
		e := NewEngine()
		prevTh, prevSt := 0.0, 0.0
		for i := 0; i < 5000; i++ {
			var rawTh, rawSt float64
			if rng.Intn(2) == 0 {
				// worst case: full-scale jumps
				rawTh = float64(rng.Intn(2))
				rawSt = float64(rng.Intn(3) - 1)
			} else {
				rawTh = rng.Float64()
				rawSt = rng.Float64()*2 - 1
			}
			th := e.Throttle(rawTh, p)
			st := e.Steering(rawSt, p)
			require.LessOrEqual(t, math.Abs(th-prevTh), p.MaxThrottleDeltaPerTick+eps)
			require.LessOrEqual(t, math.Abs(st-prevSt), p.MaxSteeringDeltaPerTick+eps)
			prevTh, prevSt = th, st
		}
	}
}

func TestEngine_KidFullSteeringRampsToLimit(t *testing.T) {
	p := Lookup(ModeKid)
	e := NewEngine()

	var out []float64
	for i := 0; i < 20; i++ {
		out = append(out, e.Steering(1.0, p))
	}

	// 0.60 limit reached in 0.10 steps
	for i := 0; i < 6; i++ {
		assert.InDelta(t, float64(i+1)*p.MaxSteeringDeltaPerTick, out[i], 1e-9, "tick %d", i)
	}
	for _, v := range out {
		assert.LessOrEqual(t, v, p.SteeringLimit+eps)
	}
	assert.InDelta(t, p.SteeringLimit, out[len(out)-1], 1e-12)
}

func TestEngine_ThrottleDeadzoneAndCeiling(t *testing.T) {
	p := Lookup(ModeNormal)
	e := NewEngine()

	assert.Equal(t, 0.0, e.Throttle(p.Deadzone/2, p))

	var last float64
	for i := 0; i < 50; i++ {
		last = e.Throttle(1, p)
	}
	assert.InDelta(t, p.MaxThrottle, last, 1e-12)

	// the curve makes half travel gentler than linear
	e.Reset()
	for i := 0; i < 50; i++ {
		last = e.Throttle(0.5, p)
	}
	linear := (0.5 - p.Deadzone) / (1 - p.Deadzone) * p.MaxThrottle
	assert.Less(t, last, linear)
}

func TestEngine_ModeChangeNeverExceedsNewCeiling(t *testing.T) {
	sport := Lookup(ModeSport)
	kid := Lookup(ModeKid)
	e := NewEngine()
	for i := 0; i < 50; i++ {
		e.Throttle(1, sport)
		e.Steering(-1, sport)
	}
	prevTh, _ := e.Last()
	th := e.Throttle(1, kid)
	st := e.Steering(-1, kid)
	assert.LessOrEqual(t, th, kid.MaxThrottle)
	assert.GreaterOrEqual(t, st, -kid.SteeringLimit)
	// the clamp to the new ceiling is not rate limited
	assert.Greater(t, prevTh-th, kid.MaxThrottleDeltaPerTick)
}

func TestEngine_Reset(t *testing.T) {
	p := Lookup(ModeSport)
	e := NewEngine()
	e.Throttle(1, p)
	e.Steering(1, p)
	th, st := e.Last()
	assert.NotZero(t, th)
	assert.NotZero(t, st)

	e.Reset()
	th, st = e.Last()
	assert.Zero(t, th)
	assert.Zero(t, st)
}

func TestEngine_ThrottleWithGain(t *testing.T) {
	normal := Lookup(ModeNormal)
	e := NewEngine()
	var prev float64
	for i := 0; i < 40; i++ {
		th := e.ThrottleWithGain(1, 1.3, normal)
		assert.LessOrEqual(t, th-prev, normal.MaxThrottleDeltaPerTick+eps, "gain does not skip the ramp")
		assert.LessOrEqual(t, th, normal.MaxThrottle+eps, "gain does not lift the ceiling")
		prev = th
	}
	assert.InDelta(t, normal.MaxThrottle, prev, eps)

	// half pedal is boosted but still below the ceiling
	e.Reset()
	var plain, boosted float64
	ref := NewEngine()
	for i := 0; i < 40; i++ {
		plain = ref.Throttle(0.6, normal)
		boosted = e.ThrottleWithGain(0.6, 1.3, normal)
	}
	assert.InDelta(t, math.Min(plain*1.3, normal.MaxThrottle), boosted, eps)
}
