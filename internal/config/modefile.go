package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/profile"
)

// modeFileMaxSize caps the active mode file read.
const modeFileMaxSize = 4096

// modeDoc is the on-disk form: {"active_mode": "normal"}.
type modeDoc struct {
	ActiveMode string `json:"active_mode"`
}

// ModeFile is the persisted active driving mode, written by the control plane
// and polled by the transmitter every tick. The file is re-read only when its
// modification time or size changes. A missing, unreadable or unknown value
// reads as normal, never as a less restricted mode.
type ModeFile struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	mode    profile.DrivingMode
	loaded  bool

	warn *monitoring.RateLimited
}

// NewModeFile returns a ModeFile for path. The file need not exist yet.
func NewModeFile(path string) *ModeFile {
	return &ModeFile{
		path: filepath.Clean(path),
		mode: profile.DefaultMode,
		warn: monitoring.NewRateLimited(30 * time.Second),
	}
}

// Path returns the file path.
func (m *ModeFile) Path() string { return m.path }

// ActiveMode implements profile.ModeSource.
func (m *ModeFile) ActiveMode() profile.DrivingMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.warn.Logf("mode file %s: %v, using %s", m.path, err, profile.DefaultMode)
		}
		m.loaded = false
		m.mode = profile.DefaultMode
		return m.mode
	}
	if m.loaded && info.ModTime().Equal(m.modTime) && info.Size() == m.size {
		return m.mode
	}

	m.mode = m.read(info)
	m.modTime = info.ModTime()
	m.size = info.Size()
	m.loaded = true
	return m.mode
}

func (m *ModeFile) read(info os.FileInfo) profile.DrivingMode {
	if info.Size() > modeFileMaxSize {
		m.warn.Logf("mode file %s too large (%d bytes), using %s", m.path, info.Size(), profile.DefaultMode)
		return profile.DefaultMode
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.warn.Logf("mode file %s: %v, using %s", m.path, err, profile.DefaultMode)
		return profile.DefaultMode
	}
	var doc modeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		m.warn.Logf("mode file %s is not valid JSON: %v, using %s", m.path, err, profile.DefaultMode)
		return profile.DefaultMode
	}
	mode, ok := profile.ParseMode(doc.ActiveMode)
	if !ok {
		m.warn.Logf("mode file %s has unknown mode %q, using %s", m.path, doc.ActiveMode, profile.DefaultMode)
		return profile.DefaultMode
	}
	return mode
}

// Save writes mode to the file atomically: a temp file in the same directory
// is renamed over the old one so a reader never sees a partial write.
func (m *ModeFile) Save(mode profile.DrivingMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown driving mode %q", mode)
	}
	data, err := json.Marshal(modeDoc{ActiveMode: mode.String()})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".mode-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp mode file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write mode file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write mode file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to replace mode file: %w", err)
	}

	m.loaded = false
	monitoring.Logf("active driving mode set to %s", mode)
	return nil
}
