// Package config loads the control link configuration file shared by the
// transmitter and bridge binaries. Every field is optional: the Get* methods
// return the built-in default for anything the file leaves out, and command
// line flags override both.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/banshee-data/rclink/internal/input"
)

// DefaultConfigPath is the example configuration checked into the repo.
const DefaultConfigPath = "config/rclink.example.yaml"

// maxFileSize caps how much of a config file is read.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// LinkConfig is the root configuration. Durations are strings like "250ms".
type LinkConfig struct {
	// Bridge side
	BridgeListen      *string `json:"bridge_listen,omitempty" yaml:"bridge_listen,omitempty"`
	SerialDevice      *string `json:"serial_device,omitempty" yaml:"serial_device,omitempty"`
	SerialBaud        *int    `json:"serial_baud,omitempty" yaml:"serial_baud,omitempty"`
	WatchdogTimeoutMs *int    `json:"watchdog_timeout_ms,omitempty" yaml:"watchdog_timeout_ms,omitempty"`
	WatchdogPoll      *string `json:"watchdog_poll,omitempty" yaml:"watchdog_poll,omitempty"`
	JournalPath       *string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"`

	// Transmitter side
	TargetHost     *string        `json:"target_host,omitempty" yaml:"target_host,omitempty"`
	TargetPort     *int           `json:"target_port,omitempty" yaml:"target_port,omitempty"`
	SendHz         *int           `json:"send_hz,omitempty" yaml:"send_hz,omitempty"`
	ReconnectDelay *string        `json:"reconnect_delay,omitempty" yaml:"reconnect_delay,omitempty"`
	ConnectTimeout *string        `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	WriteTimeout   *string        `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	JoystickDevice *string        `json:"joystick_device,omitempty" yaml:"joystick_device,omitempty"`
	ModeFile       *string        `json:"mode_file,omitempty" yaml:"mode_file,omitempty"`
	Axes           *input.AxisMap `json:"axes,omitempty" yaml:"axes,omitempty"`
}

// EmptyLinkConfig returns a LinkConfig with all fields set to nil.
func EmptyLinkConfig() *LinkConfig {
	return &LinkConfig{}
}

// LoadLinkConfig loads a LinkConfig from a .json, .yaml or .yml file.
// Fields omitted from the file fall back to their defaults, so partial
// configs are safe.
func LoadLinkConfig(path string) (*LinkConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLinkConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.UnmarshalStrict(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field that is set.
func (c *LinkConfig) Validate() error {
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}
	if c.WatchdogTimeoutMs != nil && (*c.WatchdogTimeoutMs <= 0 || *c.WatchdogTimeoutMs > 10000) {
		return fmt.Errorf("watchdog_timeout_ms must be between 1 and 10000, got %d", *c.WatchdogTimeoutMs)
	}
	if c.SendHz != nil && (*c.SendHz < 1 || *c.SendHz > 1000) {
		return fmt.Errorf("send_hz must be between 1 and 1000, got %d", *c.SendHz)
	}
	if c.TargetPort != nil && (*c.TargetPort < 1 || *c.TargetPort > 65535) {
		return fmt.Errorf("target_port must be between 1 and 65535, got %d", *c.TargetPort)
	}
	if c.BridgeListen != nil {
		if _, _, err := net.SplitHostPort(*c.BridgeListen); err != nil {
			return fmt.Errorf("invalid bridge_listen %q: %w", *c.BridgeListen, err)
		}
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"watchdog_poll", c.WatchdogPoll},
		{"reconnect_delay", c.ReconnectDelay},
		{"connect_timeout", c.ConnectTimeout},
		{"write_timeout", c.WriteTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.v)
		}
	}

	if c.GetWatchdogPoll() >= c.GetWatchdogTimeout() {
		return fmt.Errorf("watchdog_poll %v must be shorter than the watchdog timeout %v",
			c.GetWatchdogPoll(), c.GetWatchdogTimeout())
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetBridgeListen returns the bridge listen address or the default.
func (c *LinkConfig) GetBridgeListen() string {
	if c.BridgeListen == nil {
		return "0.0.0.0:5005"
	}
	return *c.BridgeListen
}

// GetSerialDevice returns the actuator serial device or the default.
func (c *LinkConfig) GetSerialDevice() string {
	if c.SerialDevice == nil {
		return "/dev/ttyTHS1"
	}
	return *c.SerialDevice
}

// GetSerialBaud returns the serial baud rate or the default.
func (c *LinkConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetWatchdogTimeout returns the watchdog timeout or the default of 150ms.
func (c *LinkConfig) GetWatchdogTimeout() time.Duration {
	if c.WatchdogTimeoutMs == nil {
		return 150 * time.Millisecond
	}
	return time.Duration(*c.WatchdogTimeoutMs) * time.Millisecond
}

// GetWatchdogPoll returns the watchdog poll interval or the default of 20ms.
func (c *LinkConfig) GetWatchdogPoll() time.Duration {
	return durationOr(c.WatchdogPoll, 20*time.Millisecond)
}

// GetJournalPath returns the session journal path. Empty disables it.
func (c *LinkConfig) GetJournalPath() string {
	if c.JournalPath == nil {
		return ""
	}
	return *c.JournalPath
}

// GetTargetHost returns the bridge host the transmitter dials.
func (c *LinkConfig) GetTargetHost() string {
	if c.TargetHost == nil {
		return "127.0.0.1"
	}
	return *c.TargetHost
}

// GetTargetPort returns the bridge port the transmitter dials.
func (c *LinkConfig) GetTargetPort() int {
	if c.TargetPort == nil {
		return 5005
	}
	return *c.TargetPort
}

// GetTargetAddress joins target host and port.
func (c *LinkConfig) GetTargetAddress() string {
	return net.JoinHostPort(c.GetTargetHost(), strconv.Itoa(c.GetTargetPort()))
}

// GetSendHz returns the transmit rate or the default of 100 Hz.
func (c *LinkConfig) GetSendHz() int {
	if c.SendHz == nil {
		return 100
	}
	return *c.SendHz
}

func (c *LinkConfig) GetReconnectDelay() time.Duration {
	return durationOr(c.ReconnectDelay, 2*time.Second)
}

func (c *LinkConfig) GetConnectTimeout() time.Duration {
	return durationOr(c.ConnectTimeout, 5*time.Second)
}

func (c *LinkConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 250*time.Millisecond)
}

// GetJoystickDevice returns the wheel's joystick device path.
func (c *LinkConfig) GetJoystickDevice() string {
	if c.JoystickDevice == nil {
		return "/dev/input/js0"
	}
	return *c.JoystickDevice
}

// GetModeFile returns the active-mode file path. Empty means the mode is
// fixed at normal.
func (c *LinkConfig) GetModeFile() string {
	if c.ModeFile == nil {
		return ""
	}
	return *c.ModeFile
}

// GetAxes returns the wheel axis layout or the default layout.
func (c *LinkConfig) GetAxes() input.AxisMap {
	if c.Axes == nil {
		return input.DefaultAxisMap
	}
	return *c.Axes
}
