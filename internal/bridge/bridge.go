// Package bridge runs on the vehicle. It accepts one control connection at a
// time, turns each valid command into an actuation frame on the serial link,
// and runs a watchdog that overrides the link with the failsafe frame whenever
// commands go stale.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/protocol"
	"github.com/banshee-data/rclink/internal/timeutil"
)

// FrameWriter is the single owned handle to the actuator link. Implementations
// must write each frame whole, never interleaved with another.
type FrameWriter interface {
	WriteFrame(protocol.ActuationFrame) error
}

// Config contains the bridge's tunables. Zero values take the defaults below.
type Config struct {
	ListenAddr          string
	WatchdogTimeout     time.Duration
	WatchdogPoll        time.Duration
	AcceptPoll          time.Duration
	ReadPoll            time.Duration
	MaxSteeringDelta    float64
	MaxThrottleDelta    float64
	InvalidLogEvery     int
	FailsafeLogInterval time.Duration

	// Clock drives the watchdog. Network deadlines always use wall time.
	Clock timeutil.Clock
	// Events receives session and failsafe events. Nil discards them.
	Events EventSink
}

const (
	DefaultListenAddr       = "0.0.0.0:5005"
	DefaultWatchdogTimeout  = 150 * time.Millisecond
	DefaultWatchdogPoll     = 20 * time.Millisecond
	DefaultAcceptPoll       = time.Second
	DefaultReadPoll         = 100 * time.Millisecond
	DefaultMaxSteeringDelta = 0.3
	DefaultMaxThrottleDelta = 0.2
	DefaultInvalidLogEvery  = 100
	DefaultFailsafeLogEvery = time.Second
)

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.WatchdogPoll <= 0 {
		c.WatchdogPoll = DefaultWatchdogPoll
	}
	if c.AcceptPoll <= 0 {
		c.AcceptPoll = DefaultAcceptPoll
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = DefaultReadPoll
	}
	if c.MaxSteeringDelta <= 0 {
		c.MaxSteeringDelta = DefaultMaxSteeringDelta
	}
	if c.MaxThrottleDelta <= 0 {
		c.MaxThrottleDelta = DefaultMaxThrottleDelta
	}
	if c.InvalidLogEvery <= 0 {
		c.InvalidLogEvery = DefaultInvalidLogEvery
	}
	if c.FailsafeLogInterval <= 0 {
		c.FailsafeLogInterval = DefaultFailsafeLogEvery
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Events == nil {
		c.Events = noopSink{}
	}
	return c
}

// Bridge is the receive side of the control link.
type Bridge struct {
	cfg      Config
	out      FrameWriter
	limiter  *DeltaLimiter
	watchdog *Watchdog

	mu      sync.Mutex
	ln      *net.TCPListener
	current *SessionInfo // nil between sessions

	sessions      atomic.Uint64
	validLines    atomic.Uint64
	invalidLines  atomic.Uint64
	sessionFrames atomic.Uint64
}

// New returns a bridge writing frames to out.
func New(cfg Config, out FrameWriter) *Bridge {
	cfg = cfg.withDefaults()
	b := &Bridge{
		cfg:     cfg,
		out:     out,
		limiter: NewDeltaLimiter(cfg.MaxSteeringDelta, cfg.MaxThrottleDelta),
	}
	b.watchdog = NewWatchdog(cfg.Clock, cfg.WatchdogTimeout, cfg.WatchdogPoll, out, b.limiter, cfg.FailsafeLogInterval)
	b.watchdog.onFailsafe = b.failsafeEntered
	return b
}

// Listen binds the TCP listener. Run calls it when needed; tests call it first
// to learn the address.
func (b *Bridge) Listen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		return nil
	}
	addr, err := net.ResolveTCPAddr("tcp", b.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.cfg.ListenAddr, err)
	}
	b.ln = ln
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (b *Bridge) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

// Watchdog exposes the watchdog for status and tests.
func (b *Bridge) Watchdog() *Watchdog { return b.watchdog }

// Run serves clients and runs the watchdog until ctx is cancelled. On return
// the final frame written is the failsafe frame and the listener is closed.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Listen(); err != nil {
		return err
	}
	monitoring.Logf("bridge listening on %s (watchdog %v, poll %v)", b.Addr(), b.cfg.WatchdogTimeout, b.cfg.WatchdogPoll)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.watchdog.Run(ctx)
	}()

	err := b.acceptLoop(ctx)
	wg.Wait()

	if ferr := b.out.WriteFrame(protocol.FailsafeFrame); ferr != nil {
		monitoring.Logf("bridge: final failsafe write failed: %v", ferr)
	}
	b.closeListener()
	monitoring.Logf("bridge stopped")
	return err
}

func (b *Bridge) acceptLoop(ctx context.Context) error {
	b.mu.Lock()
	ln := b.ln
	b.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}
		// Deadline lets the loop observe cancellation between clients.
		ln.SetDeadline(time.Now().Add(b.cfg.AcceptPoll))
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Logf("bridge: accept failed: %v", err)
			continue
		}
		conn.SetNoDelay(true)
		// One client at a time: the next Accept waits until this session ends.
		b.serve(ctx, conn)
	}
}

func (b *Bridge) closeListener() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		b.ln.Close()
	}
}

// Close releases the listener and, when the frame writer owns one, the serial
// handle. Call it after Run has returned.
func (b *Bridge) Close() error {
	b.closeListener()
	if c, ok := b.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Bridge) failsafeEntered(stale time.Duration) {
	var id string
	b.mu.Lock()
	if b.current != nil {
		id = b.current.ID
	}
	b.mu.Unlock()
	b.cfg.Events.FailsafeEntered(FailsafeEvent{
		SessionID:  id,
		Stale:      stale,
		OccurredAt: b.cfg.Clock.Now(),
	})
}

// Status is a point-in-time view of the bridge.
type Status struct {
	Watchdog        string  `json:"watchdog"`
	LastValidAgeMs  float64 `json:"last_valid_age_ms,omitempty"`
	SessionID       string  `json:"session_id,omitempty"`
	RemoteAddr      string  `json:"remote_addr,omitempty"`
	Sessions        uint64  `json:"sessions"`
	ValidLines      uint64  `json:"valid_lines"`
	InvalidLines    uint64  `json:"invalid_lines"`
	SessionFrames   uint64  `json:"session_frames"`
	FailsafeEntries uint64  `json:"failsafe_entries"`
	FailsafeFrames  uint64  `json:"failsafe_frames"`
	WatchdogErrors  uint64  `json:"watchdog_write_errors"`
	LimitedSteering float64 `json:"limited_steering"`
	LimitedThrottle float64 `json:"limited_throttle"`
}

func (b *Bridge) Status() Status {
	st := Status{
		Watchdog:        b.watchdog.State().String(),
		Sessions:        b.sessions.Load(),
		ValidLines:      b.validLines.Load(),
		InvalidLines:    b.invalidLines.Load(),
		SessionFrames:   b.sessionFrames.Load(),
		FailsafeEntries: b.watchdog.entries.Load(),
		FailsafeFrames:  b.watchdog.frames.Load(),
		WatchdogErrors:  b.watchdog.writeErrors.Load(),
	}
	if last, ok := b.watchdog.LastValid(); ok {
		st.LastValidAgeMs = float64(b.cfg.Clock.Since(last).Microseconds()) / 1e3
	}
	st.LimitedSteering, st.LimitedThrottle = b.limiter.Last()

	b.mu.Lock()
	if b.current != nil {
		st.SessionID = b.current.ID
		st.RemoteAddr = b.current.RemoteAddr
	}
	b.mu.Unlock()
	return st
}
