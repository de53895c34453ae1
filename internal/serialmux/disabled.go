package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/protocol"
)

// DisabledSerialMux stands in for the actuator link when the bridge runs with
// --disable-serial. Frames are counted and logged at most once per interval
// so a bench run shows what would have been sent without flooding the log.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	lastFrame   protocol.ActuationFrame

	frames atomic.Uint64
	logger *monitoring.RateLimited
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
		logger:      monitoring.NewRateLimited(time.Second),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) WriteFrame(frame protocol.ActuationFrame) error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return ErrClosed
	}
	d.lastFrame = frame
	d.mu.Unlock()

	d.frames.Add(1)
	d.logger.Logf("serial disabled, frame %s", strings.TrimSpace(frame.String()))
	return nil
}

func (d *DisabledSerialMux) SendLine(string) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Stats() Stats {
	d.mu.Lock()
	last := d.lastFrame
	d.mu.Unlock()
	st := Stats{FramesWritten: d.frames.Load()}
	if st.FramesWritten > 0 {
		st.LastFrame = strings.TrimSpace(last.String())
	}
	return st
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}
