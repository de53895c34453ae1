package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rclink/internal/bridge"
	"github.com/banshee-data/rclink/internal/monitoring"
)

const defaultQueueSize = 256

type recordKind int

const (
	kindStarted recordKind = iota
	kindEnded
	kindFailsafe
)

type record struct {
	kind     recordKind
	session  bridge.SessionInfo
	failsafe bridge.FailsafeEvent
}

// Recorder is a bridge.EventSink that writes events to the journal on its own
// goroutine. Events arriving while the queue is full are dropped and counted.
type Recorder struct {
	db          *DB
	queue       chan record
	logInterval time.Duration
	dropped     atomic.Uint64
	written     atomic.Uint64

	wg sync.WaitGroup
}

var _ bridge.EventSink = (*Recorder)(nil)

// NewRecorder creates a recorder over db. Dropped and failed writes are
// reported once per logInterval.
func NewRecorder(db *DB, logInterval time.Duration) *Recorder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Recorder{
		db:          db,
		queue:       make(chan record, defaultQueueSize),
		logInterval: logInterval,
	}
}

// Start runs the writer until ctx is cancelled, then drains what is queued.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		failed := 0
		var lastErr error
		var lastDropped uint64
		ticker := time.NewTicker(r.logInterval)
		defer ticker.Stop()

		write := func(rec record) {
			if err := r.write(rec); err != nil {
				failed++
				lastErr = err
				return
			}
			r.written.Add(1)
		}

		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case rec := <-r.queue:
						write(rec)
					default:
						if lastErr != nil {
							monitoring.Logf("journal: %d writes failed (latest: %v)", failed, lastErr)
						}
						return
					}
				}
			case rec := <-r.queue:
				write(rec)
			case <-ticker.C:
				if failed > 0 && lastErr != nil {
					monitoring.Logf("\033[93mjournal: %d writes failed (latest: %v)\033[0m", failed, lastErr)
					failed = 0
					lastErr = nil
				}
				if d := r.dropped.Load(); d != lastDropped {
					monitoring.Logf("\033[93mjournal: dropped %d events, queue full\033[0m", d-lastDropped)
					lastDropped = d
				}
			}
		}
	}()
}

// Wait blocks until the writer started by Start has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Dropped returns the number of events lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of events persisted.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) SessionStarted(info bridge.SessionInfo) {
	r.enqueue(record{kind: kindStarted, session: info})
}

func (r *Recorder) SessionEnded(info bridge.SessionInfo) {
	r.enqueue(record{kind: kindEnded, session: info})
}

func (r *Recorder) FailsafeEntered(ev bridge.FailsafeEvent) {
	r.enqueue(record{kind: kindFailsafe, failsafe: ev})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) write(rec record) error {
	switch rec.kind {
	case kindStarted:
		return r.db.InsertSession(sessionRow(rec.session))
	case kindEnded:
		return r.db.EndSession(sessionRow(rec.session))
	default:
		return r.db.InsertFailsafeEvent(FailsafeEvent{
			SessionID:  rec.failsafe.SessionID,
			Reason:     "watchdog_timeout",
			StaleMs:    float64(rec.failsafe.Stale) / float64(time.Millisecond),
			OccurredAt: rec.failsafe.OccurredAt,
		})
	}
}

func sessionRow(info bridge.SessionInfo) Session {
	s := Session{
		SessionID:    info.ID,
		RemoteAddr:   info.RemoteAddr,
		StartedAt:    info.StartedAt,
		ValidLines:   int64(info.ValidLines),
		InvalidLines: int64(info.InvalidLines),
		Overflows:    int64(info.Overflows),
		EndReason:    info.EndReason,
	}
	if !info.EndedAt.IsZero() {
		ended := info.EndedAt
		s.EndedAt = &ended
	}
	return s
}
