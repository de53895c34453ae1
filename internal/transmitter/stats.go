package transmitter

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindow is the number of recent tick lateness samples kept.
const latencyWindow = 1000

// Stats counts transmitter activity. Lateness is how far past its deadline
// each tick actually ran.
type Stats struct {
	mu           sync.Mutex
	sent         uint64
	writeErrors  uint64
	dialFailures uint64
	connects     uint64
	deviceErrors uint64
	resyncs      uint64

	lateness []float64 // ms, ring buffer
	pos      int
	full     bool
}

func newStats() *Stats {
	return &Stats{lateness: make([]float64, latencyWindow)}
}

// StatsSnapshot is a copy of Stats with lateness summarised.
type StatsSnapshot struct {
	Sent           uint64  `json:"sent"`
	WriteErrors    uint64  `json:"write_errors"`
	DialFailures   uint64  `json:"dial_failures"`
	Connects       uint64  `json:"connects"`
	DeviceErrors   uint64  `json:"device_errors"`
	Resyncs        uint64  `json:"resyncs"`
	LatenessMeanMs float64 `json:"lateness_mean_ms"`
	LatenessStdMs  float64 `json:"lateness_std_ms"`
	LatenessMaxMs  float64 `json:"lateness_max_ms"`
	Samples        int     `json:"samples"`
}

func (s *Stats) observeLateness(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lateness[s.pos] = float64(d.Microseconds()) / 1e3
	s.pos++
	if s.pos == len(s.lateness) {
		s.pos = 0
		s.full = true
	}
}

func (s *Stats) add(field *uint64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

// Snapshot returns the counters and lateness summary.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Sent:         s.sent,
		WriteErrors:  s.writeErrors,
		DialFailures: s.dialFailures,
		Connects:     s.connects,
		DeviceErrors: s.deviceErrors,
		Resyncs:      s.resyncs,
	}
	n := s.pos
	if s.full {
		n = len(s.lateness)
	}
	snap.Samples = n
	if n == 0 {
		return snap
	}
	window := s.lateness[:n]
	if n >= 2 {
		snap.LatenessMeanMs, snap.LatenessStdMs = stat.MeanStdDev(window, nil)
	} else {
		snap.LatenessMeanMs = window[0]
	}
	for _, v := range window {
		snap.LatenessMaxMs = math.Max(snap.LatenessMaxMs, v)
	}
	return snap
}
