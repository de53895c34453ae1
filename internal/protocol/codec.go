package protocol

import (
	"strconv"
	"strings"

	"github.com/banshee-data/rclink/internal/profile"
)

// fieldCount is the number of comma separated fields in a control line.
const fieldCount = 6

// Encode renders cmd as one newline-terminated line:
//
//	steering,throttle,brake,handbrake,turbo,mode\n
//
// with the numeric fields at three decimal places.
func Encode(cmd ControlCommand) []byte {
	return []byte(cmd.String())
}

func (c ControlCommand) String() string {
	b := make([]byte, 0, 48)
	for _, v := range [...]float64{c.Steering, c.Throttle, c.Brake, c.Handbrake, c.Turbo} {
		b = strconv.AppendFloat(b, v, 'f', 3, 64)
		b = append(b, ',')
	}
	b = append(b, string(c.Mode)...)
	b = append(b, '\n')
	return string(b)
}

// Decode parses one control line. The boolean is false when the line has the
// wrong number of fields, a field fails to parse, a value is out of range, or
// the mode is not recognised. Malformed input never produces an error.
func Decode(line string) (ControlCommand, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ControlCommand{}, false
	}
	parts := strings.Split(line, ",")
	if len(parts) != fieldCount {
		return ControlCommand{}, false
	}

	var vals [fieldCount - 1]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return ControlCommand{}, false
		}
		vals[i] = v
	}

	cmd := ControlCommand{
		Steering:  vals[0],
		Throttle:  vals[1],
		Brake:     vals[2],
		Handbrake: vals[3],
		Turbo:     vals[4],
		Mode:      profile.DrivingMode(strings.TrimSpace(parts[5])),
	}
	if cmd.Validate() != nil {
		return ControlCommand{}, false
	}
	return cmd, true
}
