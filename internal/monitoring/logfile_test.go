package monitoring

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	closer := RedirectToFile(path)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Printf("watchdog armed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "watchdog armed")
}
