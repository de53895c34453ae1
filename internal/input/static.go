package input

import "sync"

// StaticDevice replays a fixed list of snapshots. Once the script is
// exhausted the last snapshot repeats. It backs --dev runs and tests.
type StaticDevice struct {
	mu     sync.Mutex
	script []Snapshot
	next   int
	err    error
	closed bool
}

// NewStaticDevice returns a device that yields the given snapshots in order.
// With no snapshots it reports a centred wheel with every pedal released.
func NewStaticDevice(script ...Snapshot) *StaticDevice {
	if len(script) == 0 {
		script = []Snapshot{Neutral()}
	}
	return &StaticDevice{script: script}
}

// Neutral is a centred wheel with every pedal released.
func Neutral() Snapshot {
	axes := []float64{0, pedalRest, pedalRest, pedalRest}
	return Snapshot{Axes: axes, Buttons: make([]bool, DefaultAxisMap.TurboButton+1)}
}

func (d *StaticDevice) Sample() (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Snapshot{}, ErrClosed
	}
	if d.err != nil {
		return Snapshot{}, d.err
	}
	s := d.script[d.next]
	if d.next < len(d.script)-1 {
		d.next++
	}
	return s.Clone(), nil
}

// Set replaces the script with a single snapshot.
func (d *StaticDevice) Set(s Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = []Snapshot{s}
	d.next = 0
}

// SetError makes every later Sample fail with err. A nil err clears it.
func (d *StaticDevice) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *StaticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
