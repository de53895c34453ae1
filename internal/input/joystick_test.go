package input

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEvent(ev jsEvent) []byte {
	b := make([]byte, jsEventSize)
	binary.LittleEndian.PutUint32(b[0:4], ev.Time)
	binary.LittleEndian.PutUint16(b[4:6], uint16(ev.Value))
	b[6] = ev.Type
	b[7] = ev.Number
	return b
}

func waitEvents(t *testing.T, j *Joystick, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return j.Events() >= n }, time.Second, time.Millisecond)
}

func TestDecodeEvent(t *testing.T) {
	ev := jsEvent{Time: 123456, Value: -32767, Type: jsEventAxis | jsEventInit, Number: 2}
	assert.Equal(t, ev, decodeEvent(encodeEvent(ev)))
}

func TestJoystick_AppliesEvents(t *testing.T) {
	r, w := io.Pipe()
	j := newJoystick("test", r)
	defer j.Close()

	events := []jsEvent{
		{Type: jsEventAxis | jsEventInit, Number: 0, Value: 0},
		{Type: jsEventAxis | jsEventInit, Number: 1, Value: 32767},
		{Type: jsEventAxis, Number: 0, Value: -32768},
		{Type: jsEventAxis, Number: 1, Value: 0},
		{Type: jsEventButton, Number: 10, Value: 1},
		{Type: 0x10, Number: 5, Value: 1}, // unknown type is ignored
	}
	go func() {
		for _, ev := range events {
			w.Write(encodeEvent(ev))
		}
	}()
	waitEvents(t, j, uint64(len(events)))

	s, err := j.Sample()
	require.NoError(t, err)
	require.Len(t, s.Axes, 2)
	assert.Equal(t, -1.0, s.Axes[0], "axis clamps at -1")
	assert.Equal(t, 0.0, s.Axes[1])
	assert.True(t, s.Button(10))
	assert.False(t, s.Button(9))
}

func TestJoystick_ByteAtATime(t *testing.T) {
	r, w := io.Pipe()
	j := newJoystick("test", r)
	defer j.Close()

	go func() {
		for _, b := range encodeEvent(jsEvent{Type: jsEventAxis, Number: 3, Value: 16384}) {
			w.Write([]byte{b})
		}
	}()
	waitEvents(t, j, 1)

	s, err := j.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Axis(3, 0), 1e-4)
}

func TestJoystick_UnreportedAxesReadAsRest(t *testing.T) {
	r, w := io.Pipe()
	j := newJoystick("test", r)
	defer j.Close()

	// only the handbrake has moved; steering and both pedals are silent
	go func() {
		w.Write(encodeEvent(jsEvent{Type: jsEventAxis, Number: 3, Value: 0}))
	}()
	waitEvents(t, j, 1)

	s, err := j.Sample()
	require.NoError(t, err)
	require.Len(t, s.Axes, 4)
	assert.Equal(t, Controls{Steering: 0, Throttle: 1, Brake: 1, Handbrake: 0}, DefaultAxisMap.Read(s))
}

func TestJoystick_IgnoresOutOfRangeNumbers(t *testing.T) {
	r, w := io.Pipe()
	j := newJoystick("test", r)
	defer j.Close()

	go func() {
		w.Write(encodeEvent(jsEvent{Type: jsEventAxis, Number: 200, Value: 100}))
		w.Write(encodeEvent(jsEvent{Type: jsEventAxis, Number: 0, Value: 100}))
	}()
	waitEvents(t, j, 1)

	s, err := j.Sample()
	require.NoError(t, err)
	assert.Len(t, s.Axes, 1)
}

func TestJoystick_ReadErrorSurfacesOnSample(t *testing.T) {
	r, w := io.Pipe()
	j := newJoystick("test", r)
	defer j.Close()

	unplugged := errors.New("device unplugged")
	w.CloseWithError(unplugged)

	require.Eventually(t, func() bool {
		_, err := j.Sample()
		return errors.Is(err, unplugged)
	}, time.Second, time.Millisecond)
}

func TestJoystick_Close(t *testing.T) {
	r, _ := io.Pipe()
	j := newJoystick("test", r)

	require.NoError(t, j.Close())
	_, err := j.Sample()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenJoystick_Missing(t *testing.T) {
	_, err := OpenJoystick("/nonexistent/js0")
	assert.Error(t, err)

	_, err = JoystickOpener("/nonexistent/js0")()
	assert.Error(t, err)
}
