package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rclink/internal/config"
)

func parseFlags(t *testing.T, args ...string) (*flags, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("bridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := defineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

func TestResolveSettings(t *testing.T) {
	fileCfg := filepath.Join(t.TempDir(), "rclink.yaml")
	require.NoError(t, os.WriteFile(fileCfg, []byte(`
bridge_listen: "10.0.0.1:6000"
serial_device: /dev/ttyUSB0
watchdog_timeout_ms: 300
journal_path: /tmp/journal.db
`), 0o644))

	tests := []struct {
		name   string
		config string
		args   []string
		want   settings
	}{
		{
			name: "defaults",
			want: settings{
				Listen:          "0.0.0.0:5005",
				SerialPort:      "/dev/ttyTHS1",
				Baud:            115200,
				WatchdogTimeout: 150 * time.Millisecond,
				WatchdogPoll:    20 * time.Millisecond,
			},
		},
		{
			name:   "config file",
			config: fileCfg,
			want: settings{
				Listen:          "10.0.0.1:6000",
				SerialPort:      "/dev/ttyUSB0",
				Baud:            115200,
				WatchdogTimeout: 300 * time.Millisecond,
				WatchdogPoll:    20 * time.Millisecond,
				JournalPath:     "/tmp/journal.db",
			},
		},
		{
			name:   "flags override config",
			config: fileCfg,
			args:   []string{"--port", "/dev/ttyACM0", "--watchdog-ms", "500", "--baud", "57600", "--journal", "", "--disable-serial", "--admin", "127.0.0.1:8081"},
			want: settings{
				Listen:          "10.0.0.1:6000",
				SerialPort:      "/dev/ttyACM0",
				Baud:            57600,
				WatchdogTimeout: 500 * time.Millisecond,
				WatchdogPoll:    20 * time.Millisecond,
				DisableSerial:   true,
				Admin:           "127.0.0.1:8081",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fs := parseFlags(t, tt.args...)
			cfg, err := loadConfig(tt.config)
			require.NoError(t, err)
			got := resolveSettings(cfg, f, fs)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("resolveSettings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, config.EmptyLinkConfig(), cfg)
}

func TestSerialLabel(t *testing.T) {
	require.Equal(t, "disabled", serialLabel(settings{DisableSerial: true}))
	require.Equal(t, "/dev/ttyTHS1 @ 115200", serialLabel(settings{SerialPort: "/dev/ttyTHS1", Baud: 115200}))
}
