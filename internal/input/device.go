// Package input reads the driver's wheel and pedals. A Device is sampled once
// per control tick; the transmitter never blocks on the hardware.
package input

import (
	"errors"
	"math"
)

// ErrClosed is returned by Sample after Close.
var ErrClosed = errors.New("input device closed")

// Snapshot is the state of every axis and button at one instant. Axes are
// normalised to [-1, 1]; NaN marks an axis with no reading yet.
type Snapshot struct {
	Axes    []float64
	Buttons []bool
}

// Axis returns axis i, or def when the device has no such axis or the axis
// has not reported a value yet.
func (s Snapshot) Axis(i int, def float64) float64 {
	if i < 0 || i >= len(s.Axes) || math.IsNaN(s.Axes[i]) {
		return def
	}
	return s.Axes[i]
}

// Button returns button i, false when the device has no such button.
func (s Snapshot) Button(i int) bool {
	if i < 0 || i >= len(s.Buttons) {
		return false
	}
	return s.Buttons[i]
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Axes:    append([]float64(nil), s.Axes...),
		Buttons: append([]bool(nil), s.Buttons...),
	}
}

// Device is an opened input device.
type Device interface {
	Sample() (Snapshot, error)
	Close() error
}

// Opener opens a device on demand. The control plane opens the device when
// control starts rather than at process start.
type Opener func() (Device, error)

// AxisMap names the axes and buttons of the wheel set. Pedal axes rest at +1
// and read -1 fully pressed.
type AxisMap struct {
	Steering    int `json:"steering" yaml:"steering"`
	Throttle    int `json:"throttle" yaml:"throttle"`
	Brake       int `json:"brake" yaml:"brake"`
	Handbrake   int `json:"handbrake" yaml:"handbrake"`
	TurboButton int `json:"turbo_button" yaml:"turbo_button"`
}

// DefaultAxisMap is the layout of the wheel and pedal set the vehicle ships
// with.
var DefaultAxisMap = AxisMap{
	Steering:    0,
	Throttle:    1,
	Brake:       2,
	Handbrake:   3,
	TurboButton: 10,
}

// pedalRest is the axis value of a released pedal.
const pedalRest = 1.0

// Controls is a snapshot read through an AxisMap.
type Controls struct {
	Steering  float64 // [-1, 1]
	Throttle  float64 // raw pedal axis, +1 released
	Brake     float64 // raw pedal axis, +1 released
	Handbrake float64 // raw pedal axis, +1 released
	Turbo     bool
}

// Read maps s through m. Missing pedal axes read as released and a missing
// steering axis reads as centred.
func (m AxisMap) Read(s Snapshot) Controls {
	return Controls{
		Steering:  s.Axis(m.Steering, 0),
		Throttle:  s.Axis(m.Throttle, pedalRest),
		Brake:     s.Axis(m.Brake, pedalRest),
		Handbrake: s.Axis(m.Handbrake, pedalRest),
		Turbo:     s.Button(m.TurboButton),
	}
}
