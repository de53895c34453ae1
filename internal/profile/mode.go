package profile

import "strings"

// DrivingMode names one of the fixed driving presets. The set is closed.
type DrivingMode string

const (
	ModeKid    DrivingMode = "kid"
	ModeNormal DrivingMode = "normal"
	ModeSport  DrivingMode = "sport"
)

// DefaultMode is used whenever a mode cannot be resolved.
const DefaultMode = ModeNormal

// Modes returns every driving mode in a fixed order.
func Modes() []DrivingMode {
	return []DrivingMode{ModeKid, ModeNormal, ModeSport}
}

// Valid reports whether m is one of the known modes.
func (m DrivingMode) Valid() bool {
	switch m {
	case ModeKid, ModeNormal, ModeSport:
		return true
	}
	return false
}

func (m DrivingMode) String() string { return string(m) }

// ParseMode resolves s to a DrivingMode. Matching ignores case and surrounding
// whitespace. The boolean is false for anything outside the closed set.
func ParseMode(s string) (DrivingMode, bool) {
	m := DrivingMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", false
	}
	return m, true
}

// ModeSource supplies the currently selected driving mode. Implementations are
// polled once per control tick and may change value between calls.
type ModeSource interface {
	ActiveMode() DrivingMode
}

// StaticMode is a ModeSource that always reports the same mode.
type StaticMode DrivingMode

func (s StaticMode) ActiveMode() DrivingMode {
	m := DrivingMode(s)
	if !m.Valid() {
		return DefaultMode
	}
	return m
}
