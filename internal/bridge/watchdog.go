package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/protocol"
	"github.com/banshee-data/rclink/internal/timeutil"
)

// WatchdogState is the watchdog's view of command freshness.
type WatchdogState int32

const (
	// WatchdogIdle means no valid command has arrived since start.
	WatchdogIdle WatchdogState = iota
	// WatchdogArmed means the last valid command is within the timeout.
	WatchdogArmed
	// WatchdogFailsafe means commands are stale and the failsafe frame is
	// being written on every poll.
	WatchdogFailsafe
)

func (s WatchdogState) String() string {
	switch s {
	case WatchdogIdle:
		return "idle"
	case WatchdogArmed:
		return "armed"
	case WatchdogFailsafe:
		return "failsafe"
	default:
		return "unknown"
	}
}

// Watchdog forces the failsafe frame onto the serial link when valid commands
// stop arriving. It only reads the last-valid timestamp, so a stalled session
// read can never delay it.
type Watchdog struct {
	clock   timeutil.Clock
	timeout time.Duration
	poll    time.Duration
	out     FrameWriter
	limiter *DeltaLimiter

	// onFailsafe is called once per entry into failsafe.
	onFailsafe func(stale time.Duration)

	// base is taken once at construction and keeps the clock's monotonic
	// reading. lastValid is the offset from base plus one, 0 until the first
	// valid command.
	base      time.Time
	lastValid atomic.Int64
	state     atomic.Int32

	entries     atomic.Uint64
	frames      atomic.Uint64
	writeErrors atomic.Uint64

	transitions *monitoring.RateLimited
	faults      *monitoring.RateLimited
}

// NewWatchdog returns an idle watchdog. limiter may be nil.
func NewWatchdog(clock timeutil.Clock, timeout, poll time.Duration, out FrameWriter, limiter *DeltaLimiter, logInterval time.Duration) *Watchdog {
	return &Watchdog{
		clock:       clock,
		timeout:     timeout,
		poll:        poll,
		out:         out,
		limiter:     limiter,
		base:        clock.Now(),
		transitions: monitoring.NewRateLimited(logInterval),
		faults:      monitoring.NewRateLimited(logInterval),
	}
}

// Touch records the arrival of a valid command.
func (w *Watchdog) Touch() {
	w.lastValid.Store(int64(w.clock.Since(w.base)) + 1)
}

// State returns the state as of the last poll.
func (w *Watchdog) State() WatchdogState {
	return WatchdogState(w.state.Load())
}

// LastValid returns the arrival time of the last valid command and whether
// one has arrived at all.
func (w *Watchdog) LastValid() (time.Time, bool) {
	off := w.lastValid.Load()
	if off == 0 {
		return time.Time{}, false
	}
	return w.base.Add(time.Duration(off - 1)), true
}

// sinceLastValid is the age of the last valid command on the monotonic
// clock.
func (w *Watchdog) sinceLastValid() (time.Duration, bool) {
	off := w.lastValid.Load()
	if off == 0 {
		return 0, false
	}
	return w.clock.Since(w.base) - time.Duration(off-1), true
}

// Poll evaluates one watchdog tick and returns the resulting state.
func (w *Watchdog) Poll() WatchdogState {
	stale, ok := w.sinceLastValid()
	if !ok {
		w.state.Store(int32(WatchdogIdle))
		return WatchdogIdle
	}

	if stale <= w.timeout {
		if WatchdogState(w.state.Swap(int32(WatchdogArmed))) == WatchdogFailsafe {
			monitoring.Logf("watchdog: commands resumed, leaving failsafe")
		}
		return WatchdogArmed
	}

	if WatchdogState(w.state.Swap(int32(WatchdogFailsafe))) != WatchdogFailsafe {
		w.entries.Add(1)
		if w.limiter != nil {
			w.limiter.Reset()
		}
		if w.onFailsafe != nil {
			w.onFailsafe(stale)
		}
	}
	w.transitions.Logf("watchdog: no valid command for %v, holding failsafe", stale.Round(time.Millisecond))

	if err := w.out.WriteFrame(protocol.FailsafeFrame); err != nil {
		w.writeErrors.Add(1)
		w.faults.Logf("watchdog: failsafe write failed: %v", err)
	} else {
		w.frames.Add(1)
	}
	return WatchdogFailsafe
}

// Run polls until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			w.Poll()
		}
	}
}
