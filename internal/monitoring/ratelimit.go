package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"

	"tailscale.com/tstime/rate"
)

// RateLimited emits at most one message per interval through Logf. Messages
// dropped in between are counted and reported with the next emitted line.
type RateLimited struct {
	lim        *rate.Limiter
	suppressed atomic.Int64
}

// NewRateLimited returns a logger that allows one message per interval.
func NewRateLimited(interval time.Duration) *RateLimited {
	return &RateLimited{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Logf logs through the package logger unless the interval budget is spent.
// It reports whether the message was emitted.
func (r *RateLimited) Logf(format string, v ...interface{}) bool {
	if !r.lim.Allow() {
		r.suppressed.Add(1)
		return false
	}
	msg := fmt.Sprintf(format, v...)
	if n := r.suppressed.Swap(0); n > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, n)
	}
	Logf("%s", msg)
	return true
}

// Suppressed returns the number of messages dropped since the last emit.
func (r *RateLimited) Suppressed() int64 { return r.suppressed.Load() }

// EveryN gates a message to the first occurrence and then every n-th one.
// The zero value logs every occurrence.
type EveryN struct {
	n     int64
	count atomic.Int64
}

// NewEveryN returns a gate that opens on occurrences 1, n+1, 2n+1, ...
func NewEveryN(n int) *EveryN {
	return &EveryN{n: int64(n)}
}

// Logf counts one occurrence and logs it when the gate is open. The running
// total is appended so skipped occurrences stay visible.
func (e *EveryN) Logf(format string, v ...interface{}) bool {
	c := e.count.Add(1)
	if e.n > 1 && (c-1)%e.n != 0 {
		return false
	}
	Logf("%s (total %d)", fmt.Sprintf(format, v...), c)
	return true
}

// Count returns the number of occurrences seen so far.
func (e *EveryN) Count() int64 { return e.count.Load() }
