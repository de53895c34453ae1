package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rclink/internal/input"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEmptyLinkConfigDefaults(t *testing.T) {
	cfg := EmptyLinkConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:5005", cfg.GetBridgeListen())
	assert.Equal(t, "/dev/ttyTHS1", cfg.GetSerialDevice())
	assert.Equal(t, 115200, cfg.GetSerialBaud())
	assert.Equal(t, 150*time.Millisecond, cfg.GetWatchdogTimeout())
	assert.Equal(t, 20*time.Millisecond, cfg.GetWatchdogPoll())
	assert.Equal(t, "127.0.0.1:5005", cfg.GetTargetAddress())
	assert.Equal(t, 100, cfg.GetSendHz())
	assert.Equal(t, 2*time.Second, cfg.GetReconnectDelay())
	assert.Equal(t, 5*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.GetWriteTimeout())
	assert.Equal(t, "/dev/input/js0", cfg.GetJoystickDevice())
	assert.Empty(t, cfg.GetModeFile())
	assert.Empty(t, cfg.GetJournalPath())
	assert.Equal(t, input.DefaultAxisMap, cfg.GetAxes())
}

func TestLoadLinkConfig_JSON(t *testing.T) {
	path := writeFile(t, "link.json", `{
  "target_host": "10.0.0.7",
  "target_port": 6000,
  "send_hz": 50,
  "reconnect_delay": "500ms",
  "watchdog_timeout_ms": 200
}`)

	cfg, err := LoadLinkConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:6000", cfg.GetTargetAddress())
	assert.Equal(t, 50, cfg.GetSendHz())
	assert.Equal(t, 500*time.Millisecond, cfg.GetReconnectDelay())
	assert.Equal(t, 200*time.Millisecond, cfg.GetWatchdogTimeout())
	// omitted fields keep their defaults
	assert.Equal(t, "/dev/ttyTHS1", cfg.GetSerialDevice())
}

func TestLoadLinkConfig_YAML(t *testing.T) {
	path := writeFile(t, "link.yml", `
serial_device: /dev/ttyUSB0
serial_baud: 57600
axes:
  steering: 0
  throttle: 2
  brake: 1
  handbrake: 3
  turbo_button: 4
`)

	cfg, err := LoadLinkConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialDevice())
	assert.Equal(t, 57600, cfg.GetSerialBaud())
	want := input.AxisMap{Steering: 0, Throttle: 2, Brake: 1, Handbrake: 3, TurboButton: 4}
	if diff := cmp.Diff(want, cfg.GetAxes()); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLinkConfig_Example(t *testing.T) {
	candidates := []string{DefaultConfigPath, "../../" + DefaultConfigPath}
	var cfg *LinkConfig
	var err error
	for _, p := range candidates {
		if cfg, err = LoadLinkConfig(p); err == nil {
			break
		}
	}
	require.NoError(t, err, "example config must load")
	assert.Equal(t, "192.168.1.50:5005", cfg.GetTargetAddress())
	assert.Equal(t, "/var/lib/rclink/mode.json", cfg.GetModeFile())
}

func TestLoadLinkConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad extension", "link.toml", `send_hz = 10`},
		{"bad json", "link.json", `{"send_hz": }`},
		{"unknown yaml key", "link.yaml", "sendhz: 10\n"},
		{"send_hz out of range", "link.json", `{"send_hz": 0}`},
		{"baud not positive", "link.json", `{"serial_baud": -1}`},
		{"bad duration", "link.json", `{"reconnect_delay": "soon"}`},
		{"negative duration", "link.json", `{"write_timeout": "-1s"}`},
		{"bad port", "link.json", `{"target_port": 70000}`},
		{"bad listen", "link.json", `{"bridge_listen": "nohost"}`},
		{"poll not below timeout", "link.json", `{"watchdog_timeout_ms": 20, "watchdog_poll": "20ms"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLinkConfig(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadLinkConfig_Missing(t *testing.T) {
	_, err := LoadLinkConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadLinkConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(maxFileSize+1))
	require.NoError(t, f.Close())

	_, err = LoadLinkConfig(path)
	assert.ErrorContains(t, err, "too large")
}
