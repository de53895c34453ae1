package bridge

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rclink/internal/protocol"
)

// recordingWriter captures every frame written to it.
type recordingWriter struct {
	mu     sync.Mutex
	frames []protocol.ActuationFrame
	err    error
	closed bool
}

func (w *recordingWriter) WriteFrame(f protocol.ActuationFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, f)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *recordingWriter) Frames() []protocol.ActuationFrame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]protocol.ActuationFrame(nil), w.frames...)
}

func (w *recordingWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func (w *recordingWriter) Last() (protocol.ActuationFrame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		return protocol.ActuationFrame{}, false
	}
	return w.frames[len(w.frames)-1], true
}

// recordingSink captures bridge events.
type recordingSink struct {
	mu        sync.Mutex
	started   []SessionInfo
	ended     []SessionInfo
	failsafes []FailsafeEvent
}

func (s *recordingSink) SessionStarted(i SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, i)
}

func (s *recordingSink) SessionEnded(i SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, i)
}

func (s *recordingSink) FailsafeEntered(e FailsafeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failsafes = append(s.failsafes, e)
}

func (s *recordingSink) Ended() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionInfo(nil), s.ended...)
}

func (s *recordingSink) Failsafes() []FailsafeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailsafeEvent(nil), s.failsafes...)
}

// startBridge runs a bridge on a loopback port and returns it with a stop
// func that cancels Run and waits for it to return.
func startBridge(t *testing.T, cfg Config, out FrameWriter) (*Bridge, func()) {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.AcceptPoll == 0 {
		cfg.AcceptPoll = 50 * time.Millisecond
	}
	if cfg.ReadPoll == 0 {
		cfg.ReadPoll = 20 * time.Millisecond
	}
	b := New(cfg, out)
	require.NoError(t, b.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("bridge did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return b, stop
}

func dial(t *testing.T, b *Bridge) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
