package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/protocol"
)

func TestDeltaLimiter_StepsTowardTarget(t *testing.T) {
	l := NewDeltaLimiter(0.3, 0.2)
	cmd := protocol.ControlCommand{Steering: 1, Throttle: 1, Brake: 0.4, Handbrake: 1, Turbo: 1, Mode: profile.ModeSport}

	var steer, thr []float64
	for i := 0; i < 6; i++ {
		out := l.Apply(cmd)
		steer = append(steer, out.Steering)
		thr = append(thr, out.Throttle)
		assert.Equal(t, 0.4, out.Brake, "brake passes through")
		assert.Equal(t, 1.0, out.Handbrake)
		assert.Equal(t, 1.0, out.Turbo)
		assert.Equal(t, profile.ModeSport, out.Mode)
	}

	assert.InDeltaSlice(t, []float64{0.3, 0.6, 0.9, 1, 1, 1}, steer, 1e-9)
	assert.InDeltaSlice(t, []float64{0.2, 0.4, 0.6, 0.8, 1, 1}, thr, 1e-9)
}

func TestDeltaLimiter_NeverExceedsBound(t *testing.T) {
	l := NewDeltaLimiter(0.3, 0.2)
	targets := []float64{1, -1, 1, 0, -1, -1, 0.5}
	prevS, prevT := l.Last()
	for _, v := range targets {
		thr := (v + 1) / 2
		out := l.Apply(protocol.ControlCommand{Steering: v, Throttle: thr, Mode: profile.ModeNormal})
		assert.LessOrEqual(t, abs(out.Steering-prevS), 0.3+1e-9)
		assert.LessOrEqual(t, abs(out.Throttle-prevT), 0.2+1e-9)
		prevS, prevT = out.Steering, out.Throttle
	}
}

func TestDeltaLimiter_Reset(t *testing.T) {
	l := NewDeltaLimiter(0.3, 0.2)
	l.Apply(protocol.ControlCommand{Steering: -1, Throttle: 1})
	s, th := l.Last()
	assert.InDelta(t, -0.3, s, 1e-9)
	assert.InDelta(t, 0.2, th, 1e-9)

	l.Reset()
	s, th = l.Last()
	assert.Zero(t, s)
	assert.Zero(t, th)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
