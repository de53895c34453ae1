package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/protocol"
)

func TestDisabledSerialMux(t *testing.T) {
	var logged []string
	orig := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	defer monitoring.SetLogger(orig)

	var m SerialMuxInterface = NewDisabledSerialMux()

	for i := 0; i < 5; i++ {
		if err := m.WriteFrame(protocol.FailsafeFrame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if len(logged) != 1 {
		t.Errorf("expected one rate-limited log line, got %d", len(logged))
	}
	st := m.Stats()
	if st.FramesWritten != 5 || st.LastFrame != "90,0,100,0,0" {
		t.Errorf("unexpected stats %+v", st)
	}
	if err := m.SendLine("PING"); err != nil {
		t.Errorf("SendLine: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Monitor(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	_, ch := m.Subscribe()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel closed")
	}
	if err := m.WriteFrame(protocol.FailsafeFrame); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDisabledSerialMux_AdminRoutes(t *testing.T) {
	m := NewDisabledSerialMux()
	defer m.Close()

	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
