package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimited_SuppressesWithinInterval(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	rl := NewRateLimited(time.Hour)
	assert.True(t, rl.Logf("failsafe %d", 1))
	assert.False(t, rl.Logf("failsafe %d", 2))
	assert.False(t, rl.Logf("failsafe %d", 3))

	assert.Equal(t, []string{"failsafe 1"}, lines)
	assert.EqualValues(t, 2, rl.Suppressed())
}

func TestRateLimited_ReportsSuppressedCount(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	rl := NewRateLimited(20 * time.Millisecond)
	rl.Logf("a")
	rl.Logf("b")
	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.Logf("c"))

	assert.Equal(t, []string{"a", "c (1 similar suppressed)"}, lines)
	assert.Zero(t, rl.Suppressed())
}

func TestEveryN(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	gate := NewEveryN(3)
	var emitted []bool
	for i := 0; i < 7; i++ {
		emitted = append(emitted, gate.Logf("invalid line"))
	}

	assert.Equal(t, []bool{true, false, false, true, false, false, true}, emitted)
	assert.Equal(t, []string{
		"invalid line (total 1)",
		"invalid line (total 4)",
		"invalid line (total 7)",
	}, lines)
	assert.EqualValues(t, 7, gate.Count())
}

func TestEveryN_ZeroValueLogsAll(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	n := 0
	SetLogger(func(string, ...interface{}) { n++ })

	var gate EveryN
	gate.Logf("x")
	gate.Logf("y")
	assert.Equal(t, 2, n)
}
