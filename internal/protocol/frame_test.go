package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rclink/internal/profile"
)

func TestFailsafeFrame(t *testing.T) {
	assert.Equal(t, "90,0,100,0,0\n", FailsafeFrame.String())
	assert.True(t, FailsafeFrame.IsFailsafe())
}

func TestFrameFromCommand_DecodedFailsafeLine(t *testing.T) {
	cmd, ok := Decode("0.0,0.0,1.0,0.0,0.0,normal\n")
	require.True(t, ok)
	assert.Equal(t, "90,0,100,0,0\n", FrameFromCommand(cmd).String())
}

func TestFrameFromCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  ControlCommand
		want string
	}{
		{"full left", ControlCommand{Steering: -1, Mode: profile.ModeNormal}, "0,0,0,0,0\n"},
		{"full right", ControlCommand{Steering: 1, Mode: profile.ModeNormal}, "180,0,0,0,0\n"},
		{"rounded angle", ControlCommand{Steering: 0.125, Throttle: 0.43, Mode: profile.ModeNormal}, "101,43,0,0,0\n"},
		{"flags threshold", ControlCommand{Handbrake: 0.5, Turbo: 0.51, Mode: profile.ModeSport}, "90,0,0,0,1\n"},
		{"flags on", ControlCommand{Handbrake: 1, Turbo: 1, Brake: 0.26, Mode: profile.ModeKid}, "90,0,26,1,1\n"},
		{"clamped", ControlCommand{Steering: 3, Throttle: 2, Brake: -1, Mode: profile.ModeNormal}, "180,100,0,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameFromCommand(tt.cmd).String())
		})
	}
}
