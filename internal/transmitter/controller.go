package transmitter

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/rclink/internal/input"
	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/profile"
)

// ResultStatus is the outcome of a control-plane action.
type ResultStatus string

const (
	StatusOK             ResultStatus = "ok"
	StatusAlreadyRunning ResultStatus = "already_running"
	StatusNotRunning     ResultStatus = "not_running"
	StatusError          ResultStatus = "error"
)

// Result is returned by every start and stop action. Failures are reported
// here, never as a panic or bare error across the boundary.
type Result struct {
	Status  ResultStatus   `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Status describes the controller for the control plane.
type Status struct {
	Running bool           `json:"running"`
	State   string         `json:"state"`
	Target  string         `json:"target"`
	Mode    string         `json:"mode"`
	Turbo   bool           `json:"turbo"`
	Since   *time.Time     `json:"since,omitempty"`
	Stats   *StatsSnapshot `json:"stats,omitempty"`
}

// Controller starts and stops the transmitter on behalf of the control
// plane. The input device is opened on Start and closed on Stop.
type Controller struct {
	cfg   Config
	open  input.Opener
	modes profile.ModeSource

	mu      sync.Mutex
	tx      *Transmitter
	dev     input.Device
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// NewController returns a stopped controller.
func NewController(cfg Config, open input.Opener, modes profile.ModeSource) *Controller {
	return &Controller{
		cfg:   cfg.withDefaults(),
		open:  open,
		modes: modes,
	}
}

// Start opens the input device and starts the control loop.
func (c *Controller) Start() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return Result{Status: StatusAlreadyRunning, Message: "car control already running"}
	}

	dev, err := c.open()
	if err != nil {
		monitoring.Logf("controller: input device unavailable: %v", err)
		return Result{
			Status:  StatusError,
			Message: "failed to open input device",
			Details: map[string]any{"error": err.Error()},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tx := New(c.cfg, dev, c.modes)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := tx.Run(ctx); err != nil {
			monitoring.Logf("controller: transmitter exited: %v", err)
		}
	}()

	c.tx, c.dev, c.cancel, c.done = tx, dev, cancel, done
	c.started = c.cfg.Clock.Now()
	return Result{
		Status:  StatusOK,
		Message: "car control started",
		Details: map[string]any{"target": c.cfg.Address, "send_hz": c.cfg.SendHz},
	}
}

// Stop cancels the control loop and waits for the failsafe command to be
// flushed before closing the input device.
func (c *Controller) Stop() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return Result{Status: StatusNotRunning, Message: "car control not running"}
	}

	c.cancel()
	<-c.done
	stats := c.tx.Stats()
	devErr := c.dev.Close()
	c.tx, c.dev, c.cancel, c.done = nil, nil, nil, nil

	res := Result{
		Status:  StatusOK,
		Message: "car control stopped",
		Details: map[string]any{"sent": stats.Sent},
	}
	if devErr != nil {
		res.Details["device_close_error"] = devErr.Error()
	}
	return res
}

// Status reports whether the loop is running and its link state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:  Disconnected.String(),
		Target: c.cfg.Address,
		Mode:   c.modes.ActiveMode().String(),
	}
	if c.tx == nil {
		return st
	}
	st.Running = true
	st.State = c.tx.State().String()
	st.Turbo = c.tx.Turbo()
	started := c.started
	st.Since = &started
	stats := c.tx.Stats()
	st.Stats = &stats
	return st
}
