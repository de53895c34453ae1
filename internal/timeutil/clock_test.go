package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Timer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(5 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRealClock_Until(t *testing.T) {
	clock := RealClock{}
	d := clock.Until(time.Now().Add(time.Hour))
	assert.Greater(t, d, 59*time.Minute)
}

func TestMockClock_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(150 * time.Millisecond)
	assert.Equal(t, start.Add(150*time.Millisecond), clock.Now())
	assert.Equal(t, 150*time.Millisecond, clock.Since(start))
	assert.Equal(t, -150*time.Millisecond, clock.Until(start))
}

func TestMockTimer_FiresAtDeadline(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(10 * time.Millisecond)

	clock.Advance(9 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire at deadline")
	}
	assert.False(t, timer.Stop())
}

func TestMockTimer_ResetRearmsFromNow(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(10 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	<-timer.C()

	assert.False(t, timer.Reset(5*time.Millisecond))
	clock.Advance(4 * time.Millisecond)
	require.Len(t, timer.C(), 0)
	clock.Advance(time.Millisecond)
	require.Len(t, timer.C(), 1)
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(20 * time.Millisecond)

	clock.Advance(20 * time.Millisecond)
	require.Len(t, ticker.C(), 1)
	<-ticker.C()

	ticker.Stop()
	clock.Advance(time.Second)
	assert.Len(t, ticker.C(), 0)
}

func TestMockClock_PendingTimers(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	a := clock.NewTimer(10 * time.Millisecond)
	b := clock.NewTimer(20 * time.Millisecond)
	assert.Equal(t, 2, clock.PendingTimers())

	b.Stop()
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(10 * time.Millisecond)
	<-a.C()
	assert.Zero(t, clock.PendingTimers())

	a.Reset(5 * time.Millisecond)
	assert.Equal(t, 1, clock.PendingTimers())
}
