// Package serialmux owns the serial link to the vehicle's actuator controller. All
// writes go through one mutex so frames from different goroutines never
// interleave, and lines the controller prints back are fanned out to any
// number of subscribers.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rclink/internal/protocol"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	ErrClosed      = errors.New("serial port closed")
)

// SerialMux is a serial port wrapper with a single serialised write path and
// line subscribers for whatever the device sends back.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	lastFrame    protocol.ActuationFrame // guarded by commandMu
	closing      atomic.Bool

	framesWritten atomic.Uint64
	writeErrors   atomic.Uint64
	linesRead     atomic.Uint64
}

// Stats is a snapshot of the mux counters.
type Stats struct {
	FramesWritten uint64 `json:"frames_written"`
	WriteErrors   uint64 `json:"write_errors"`
	LinesRead     uint64 `json:"lines_read"`
	LastFrame     string `json:"last_frame"`
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// WriteFrame writes one actuation frame to the device.
	WriteFrame(protocol.ActuationFrame) error
	// SendLine writes a raw newline-terminated line to the device.
	SendLine(string) error
	// Monitor reads lines from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	Stats() Stats

	// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux
	// served at /debug/. These routes are accessible only over localhost or
	// Tailscale.
	AttachAdminRoutes(*http.ServeMux)
}

// subscriberBuffer is the per-subscriber backlog before lines are dropped.
const subscriberBuffer = 16

// NewSerialMux creates a SerialMux around an already opened port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// WriteFrame writes a complete actuation frame. Concurrent callers are
// serialised so frames never interleave on the wire.
func (s *SerialMux[T]) WriteFrame(frame protocol.ActuationFrame) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if err := s.write(frame.Bytes()); err != nil {
		return err
	}
	s.lastFrame = frame
	s.framesWritten.Add(1)
	return nil
}

// SendLine sends a raw line to the serial port, adding the newline if missing.
func (s *SerialMux[T]) SendLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	return s.write([]byte(line))
}

func (s *SerialMux[T]) write(b []byte) error {
	if s.closing.Load() {
		return ErrClosed
	}
	n, err := s.port.Write(b)
	if err != nil {
		s.writeErrors.Add(1)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(b) {
		s.writeErrors.Add(1)
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the device and forwards them to subscribers until
// the context is cancelled, the port is closed or a read fails.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs on its own goroutine so it cannot hold up
	// context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.closing.Load() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				// a scan error is queued before lineChan closes
				select {
				case err := <-scanErrChan:
					if s.closing.Load() {
						return nil
					}
					return err
				default:
					return nil
				}
			}
			if s.closing.Load() {
				return nil
			}
			s.linesRead.Add(1)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// slow subscribers miss lines rather than stall the reader
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Stats returns the current counters.
func (s *SerialMux[T]) Stats() Stats {
	s.commandMu.Lock()
	last := s.lastFrame
	s.commandMu.Unlock()

	st := Stats{
		FramesWritten: s.framesWritten.Load(),
		WriteErrors:   s.writeErrors.Load(),
		LinesRead:     s.linesRead.Load(),
	}
	if st.FramesWritten > 0 {
		st.LastFrame = strings.TrimSpace(last.String())
	}
	return st
}

// Close waits for any in-flight write, closes subscriber channels and then
// the port. Later writes return ErrClosed.
func (s *SerialMux[T]) Close() error {
	s.commandMu.Lock()
	alreadyClosed := s.closing.Swap(true)
	s.commandMu.Unlock()
	if alreadyClosed {
		return nil
	}

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// attachAdminRoutes is shared by the real and disabled muxes.
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Serial frames written", func() any { return s.Stats().FramesWritten })
	debug.KVFunc("Serial write errors", func() any { return s.Stats().WriteErrors })
	debug.KVFunc("Last actuation frame", func() any { return s.Stats().LastFrame })

	// Server-Sent Events stream of lines printed by the actuator controller.
	debug.HandleFunc("serial-tail", "live tail of actuator controller output", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
