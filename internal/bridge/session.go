package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/protocol"
)

// readBufferSize comfortably holds several command lines per read.
const readBufferSize = 1024

// serve runs one client session to completion. It always ends by writing the
// failsafe frame, whatever the reason the session ended.
func (b *Bridge) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	info := SessionInfo{
		ID:         uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		StartedAt:  b.cfg.Clock.Now(),
	}
	// Each session ramps from neutral. The watchdog timestamp is
	// left alone so a silent new client cannot clear an active failsafe.
	b.limiter.Reset()
	b.sessions.Add(1)

	b.mu.Lock()
	b.current = &info
	b.mu.Unlock()
	b.cfg.Events.SessionStarted(info)
	monitoring.Logf("bridge: session %s from %s", info.ID, info.RemoteAddr)

	var framer protocol.LineFramer
	invalidLog := monitoring.NewEveryN(b.cfg.InvalidLogEvery)
	buf := make([]byte, readBufferSize)

	info.EndReason = func() string {
		for {
			if ctx.Err() != nil {
				return EndShutdown
			}
			conn.SetReadDeadline(time.Now().Add(b.cfg.ReadPoll))
			n, err := conn.Read(buf)
			// Bytes returned alongside an error are still processed.
			for _, line := range framer.Feed(buf[:n]) {
				cmd, ok := protocol.Decode(line)
				if !ok {
					info.InvalidLines++
					b.invalidLines.Add(1)
					invalidLog.Logf("bridge: session %s dropped invalid line %q", info.ID, truncate(line, 64))
					continue
				}
				info.ValidLines++
				b.validLines.Add(1)
				b.watchdog.Touch()

				frame := protocol.FrameFromCommand(b.limiter.Apply(cmd))
				if werr := b.out.WriteFrame(frame); werr != nil {
					monitoring.Logf("bridge: session %s serial write failed: %v", info.ID, werr)
					return EndSerialError
				}
				b.sessionFrames.Add(1)
			}
			if err == nil {
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return EndClosed
			}
			if ctx.Err() != nil {
				return EndShutdown
			}
			monitoring.Logf("bridge: session %s read failed: %v", info.ID, err)
			return EndReadError
		}
	}()

	if err := b.out.WriteFrame(protocol.FailsafeFrame); err != nil {
		monitoring.Logf("bridge: session %s end failsafe write failed: %v", info.ID, err)
	}

	info.Overflows = uint64(framer.Overflows())
	info.EndedAt = b.cfg.Clock.Now()
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
	b.cfg.Events.SessionEnded(info)
	monitoring.Logf("bridge: session %s ended (%s): %d valid, %d invalid lines",
		info.ID, info.EndReason, info.ValidLines, info.InvalidLines)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
