package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(WithLogLevel("loud"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "level=loud")
}

func TestNewLoggerWritesJSONAtLevel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")

	zl, err := NewLogger(WithLogLevel("warn"), WithOutputPaths(out))
	require.NoError(t, err)

	zl.Info("dropped")
	zl.Warn("kept")
	_ = zl.Sync()

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(b), "dropped")
	require.Contains(t, string(b), `"msg":"kept"`)
	require.Contains(t, string(b), `"level":"warn"`)
}

func TestMustPanicsOnError(t *testing.T) {
	require.Panics(t, func() {
		Must(NewLogger(WithLogLevel("nope")))
	})
}
