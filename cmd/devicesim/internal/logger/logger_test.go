package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Format: "json", Output: &buf})

	Component("listener").Info("Identity delivered", "username", "alice")
	Debug("hidden at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Identity delivered", entry["msg"])
	assert.Equal(t, "listener", entry["component"])
	assert.Equal(t, "alice", entry["username"])
}

func TestConfigureDebugText(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Debug: true, Output: &buf})

	Debug("Toggled connection state", "connected", true)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "connected=true")
}

func TestConfigureFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devicesim.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	defer f.Close()

	Configure(Options{Output: f})
	Info("Connect status changed", "connected", true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Connect status changed")
}
