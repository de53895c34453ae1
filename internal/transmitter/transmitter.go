// Package transmitter runs the operator-side control loop: sample the wheel,
// shape the inputs for the active driving mode, and stream one command per
// tick to the bridge on the vehicle.
package transmitter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rclink/internal/input"
	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/protocol"
	"github.com/banshee-data/rclink/internal/timeutil"
)

// DialFunc opens the connection to the bridge.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config contains the transmitter's settings. Zero values take the defaults.
type Config struct {
	Address        string
	SendHz         int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	StatsInterval  time.Duration
	Axes           *input.AxisMap

	Dialer DialFunc
	Clock  timeutil.Clock
}

const (
	DefaultSendHz         = 100
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 250 * time.Millisecond
	DefaultReconnectDelay = 2 * time.Second
	DefaultStatsInterval  = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.SendHz <= 0 {
		c.SendHz = DefaultSendHz
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.Axes == nil {
		axes := input.DefaultAxisMap
		c.Axes = &axes
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Dialer == nil {
		d := &net.Dialer{}
		c.Dialer = d.DialContext
	}
	return c
}

// Period returns the tick period for the configured rate.
func (c Config) Period() time.Duration {
	return time.Second / time.Duration(c.withDefaults().SendHz)
}

// Transmitter is the fixed-rate control loop. Run may be called once.
type Transmitter struct {
	cfg     Config
	dev     input.Device
	modes   profile.ModeSource
	clock   timeutil.Clock
	sampler *Sampler
	stats   *Stats

	state atomic.Int32
	turbo atomic.Bool

	mu      sync.Mutex
	lastCmd protocol.ControlCommand

	dialLog   *monitoring.RateLimited
	deviceLog *monitoring.RateLimited
}

// New returns a transmitter reading dev and sending to cfg.Address.
func New(cfg Config, dev input.Device, modes profile.ModeSource) *Transmitter {
	cfg = cfg.withDefaults()
	return &Transmitter{
		cfg:       cfg,
		dev:       dev,
		modes:     modes,
		clock:     cfg.Clock,
		sampler:   NewSampler(*cfg.Axes),
		stats:     newStats(),
		lastCmd:   protocol.Failsafe(),
		dialLog:   monitoring.NewRateLimited(10 * time.Second),
		deviceLog: monitoring.NewRateLimited(time.Second),
	}
}

// State returns the current link state.
func (t *Transmitter) State() ConnState { return ConnState(t.state.Load()) }

// Turbo reports whether the turbo latch is on.
func (t *Transmitter) Turbo() bool { return t.turbo.Load() }

// Stats returns the current counters.
func (t *Transmitter) Stats() StatsSnapshot { return t.stats.Snapshot() }

// LastCommand returns the last command sent.
func (t *Transmitter) LastCommand() protocol.ControlCommand {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCmd
}

func (t *Transmitter) setState(s ConnState) { t.state.Store(int32(s)) }

// Run sends one command per tick until ctx is cancelled, reconnecting after
// any failure for as long as it runs. On cancellation it sends the failsafe
// command on the open connection, if any, before closing it.
func (t *Transmitter) Run(ctx context.Context) error {
	period := t.cfg.Period()
	monitoring.Logf("transmitter: sending to %s at %d Hz", t.cfg.Address, t.cfg.SendHz)

	go t.logStats(ctx)

	timer := t.clock.NewTimer(period)
	timer.Stop()
	defer timer.Stop()

	var conn net.Conn
	defer func() {
		if conn != nil {
			t.sendFailsafe(conn)
			conn.Close()
		}
		t.setState(Disconnected)
		monitoring.Logf("transmitter: stopped")
	}()

	var next time.Time
	for {
		if conn == nil {
			c, err := t.connect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.stats.add(&t.stats.dialFailures)
				t.dialLog.Logf("transmitter: connect to %s failed: %v", t.cfg.Address, err)
				if !t.wait(ctx, timer, t.cfg.ReconnectDelay) {
					return nil
				}
				continue
			}
			conn = c
			next = t.clock.Now()
		}

		// Wait for the tick deadline.
		if d := t.clock.Until(next); d > 0 {
			if !t.wait(ctx, timer, d) {
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}

		t.stats.observeLateness(t.clock.Since(next))
		next = next.Add(period)
		// After a stall the schedule restarts from this tick instead of
		// bursting to catch up.
		if behind := t.clock.Since(next); behind > period {
			t.stats.add(&t.stats.resyncs)
			next = t.clock.Now().Add(period)
		}

		cmd := t.buildCommand()
		if err := t.write(conn, cmd); err != nil {
			t.stats.add(&t.stats.writeErrors)
			monitoring.Logf("transmitter: write to %s failed: %v", t.cfg.Address, err)
			conn.Close()
			conn = nil
			t.setState(Disconnected)
			if !t.wait(ctx, timer, t.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		t.stats.add(&t.stats.sent)
	}
}

func (t *Transmitter) connect(ctx context.Context) (net.Conn, error) {
	t.setState(Connecting)
	dctx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	conn, err := t.cfg.Dialer(dctx, "tcp", t.cfg.Address)
	if err != nil {
		t.setState(Disconnected)
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	// Every new connection ramps from rest.
	t.sampler.Reset()
	t.stats.add(&t.stats.connects)
	t.setState(Connected)
	monitoring.Logf("transmitter: connected to %s", t.cfg.Address)
	return conn, nil
}

// wait blocks for d or until ctx is done. It reports false on cancellation.
func (t *Transmitter) wait(ctx context.Context, timer timeutil.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C():
		return true
	}
}

func (t *Transmitter) buildCommand() protocol.ControlCommand {
	snap, err := t.dev.Sample()
	if err != nil {
		t.stats.add(&t.stats.deviceErrors)
		t.deviceLog.Logf("transmitter: input device failed, sending failsafe: %v", err)
		return protocol.Failsafe()
	}
	cmd := t.sampler.Build(snap, t.modes.ActiveMode())
	t.turbo.Store(t.sampler.TurboLatched())
	return cmd
}

func (t *Transmitter) write(conn net.Conn, cmd protocol.ControlCommand) error {
	// A stalled write would stall the whole loop, so it is bounded and a
	// timeout counts as a connection fault.
	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}
	b := protocol.Encode(cmd)
	n, err := conn.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(b))
	}
	t.mu.Lock()
	t.lastCmd = cmd
	t.mu.Unlock()
	return nil
}

func (t *Transmitter) sendFailsafe(conn net.Conn) {
	if err := t.write(conn, protocol.Failsafe()); err != nil {
		monitoring.Logf("transmitter: failsafe on stop not delivered: %v", err)
		return
	}
	t.stats.add(&t.stats.sent)
}

func (t *Transmitter) logStats(ctx context.Context) {
	ticker := t.clock.NewTicker(t.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s := t.Stats()
			monitoring.Logf("transmitter: %s sent=%d write_errors=%d dial_failures=%d lateness mean=%.2fms std=%.2fms max=%.2fms",
				t.State(), s.Sent, s.WriteErrors, s.DialFailures, s.LatenessMeanMs, s.LatenessStdMs, s.LatenessMaxMs)
		}
	}
}
