package bridge

import "time"

// SessionInfo describes one client session.
type SessionInfo struct {
	ID           string
	RemoteAddr   string
	StartedAt    time.Time
	EndedAt      time.Time
	ValidLines   uint64
	InvalidLines uint64
	Overflows    uint64
	EndReason    string
}

// FailsafeEvent records one entry into watchdog failsafe. SessionID is empty
// when no client was connected.
type FailsafeEvent struct {
	SessionID  string
	Stale      time.Duration
	OccurredAt time.Time
}

// EventSink receives bridge lifecycle events. Calls are made on the bridge's
// real-time goroutines, so implementations must not block.
type EventSink interface {
	SessionStarted(SessionInfo)
	SessionEnded(SessionInfo)
	FailsafeEntered(FailsafeEvent)
}

type noopSink struct{}

func (noopSink) SessionStarted(SessionInfo)    {}
func (noopSink) SessionEnded(SessionInfo)      {}
func (noopSink) FailsafeEntered(FailsafeEvent) {}

// End reasons recorded on SessionInfo.
const (
	EndClosed      = "closed"
	EndReadError   = "read_error"
	EndSerialError = "serial_error"
	EndShutdown    = "shutdown"
)
