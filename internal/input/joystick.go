package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/banshee-data/rclink/internal/monitoring"
)

// Linux joystick API event layout (linux/joystick.h): u32 time in ms,
// s16 value, u8 type, u8 number.
const (
	jsEventSize   = 8
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80

	axisScale = 32767.0
)

// maxControls bounds how far a corrupt event number can grow the snapshot.
const maxControls = 64

type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

func decodeEvent(b []byte) jsEvent {
	return jsEvent{
		Time:   binary.LittleEndian.Uint32(b[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(b[4:6])),
		Type:   b[6],
		Number: b[7],
	}
}

// Joystick reads a /dev/input/js* device. A background goroutine applies
// events to a snapshot so Sample never blocks on the device.
type Joystick struct {
	path string
	r    io.ReadCloser

	mu     sync.Mutex
	state  Snapshot
	err    error
	events uint64

	done chan struct{}
}

// OpenJoystick opens the joystick device at path and starts reading events.
func OpenJoystick(path string) (*Joystick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open joystick %s: %w", path, err)
	}
	return newJoystick(path, f), nil
}

// JoystickOpener returns an Opener for the device at path.
func JoystickOpener(path string) Opener {
	return func() (Device, error) { return OpenJoystick(path) }
}

func newJoystick(path string, r io.ReadCloser) *Joystick {
	j := &Joystick{
		path: path,
		r:    r,
		done: make(chan struct{}),
	}
	go j.readLoop()
	return j
}

func (j *Joystick) readLoop() {
	defer close(j.done)
	buf := make([]byte, jsEventSize)
	for {
		if _, err := io.ReadFull(j.r, buf); err != nil {
			j.mu.Lock()
			closed := errors.Is(j.err, ErrClosed)
			if j.err == nil {
				j.err = err
			}
			j.mu.Unlock()
			if !closed {
				monitoring.Logf("joystick %s read failed: %v", j.path, err)
			}
			return
		}
		j.apply(decodeEvent(buf))
	}
}

func (j *Joystick) apply(ev jsEvent) {
	n := int(ev.Number)
	if n >= maxControls {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events++
	switch ev.Type &^ jsEventInit {
	case jsEventAxis:
		// Axes below n that have not reported stay NaN so Snapshot.Axis
		// falls back to the caller's rest value.
		for len(j.state.Axes) <= n {
			j.state.Axes = append(j.state.Axes, math.NaN())
		}
		v := float64(ev.Value) / axisScale
		if v < -1 {
			v = -1
		}
		j.state.Axes[n] = v
	case jsEventButton:
		for len(j.state.Buttons) <= n {
			j.state.Buttons = append(j.state.Buttons, false)
		}
		j.state.Buttons[n] = ev.Value != 0
	}
}

// Sample returns the latest state. A read failure in the background reader
// is returned here.
func (j *Joystick) Sample() (Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return Snapshot{}, j.err
	}
	return j.state.Clone(), nil
}

// Events returns the number of events applied so far.
func (j *Joystick) Events() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.events
}

// Close closes the device and waits for the reader to exit.
func (j *Joystick) Close() error {
	j.mu.Lock()
	if j.err == nil {
		j.err = ErrClosed
	}
	j.mu.Unlock()
	err := j.r.Close()
	<-j.done
	return err
}
