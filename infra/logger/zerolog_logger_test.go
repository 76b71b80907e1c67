package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerJSONFields(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	var buf bytes.Buffer
	l := newZerolog(&buf, zerolog.InfoLevel, "planning")
	l.Debugf("hidden")
	l.Infow("slot created", map[string]any{"slot": "s1"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "planning", line["component"])
	assert.Equal(t, "s1", line["slot"])
	assert.Equal(t, "slot created", line["message"])
}

func TestSetupRotatingFile(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	path := filepath.Join(t.TempDir(), "haulboard.log")
	require.NoError(t, Setup("debug", FileConfig{Path: path, MaxSizeMB: 1}))
	t.Cleanup(func() { _ = Close() })

	New("file").Debugf("to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	assert.Error(t, Setup("loud", FileConfig{}))
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("nothing")
	l.Infow("nothing", nil)
}
