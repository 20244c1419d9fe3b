package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONFieldNames(t *testing.T) {
	t.Setenv("DEBUG", "")
	var buf bytes.Buffer
	InitWithOutput("info", "json", &buf)

	Source("filse_privati").Info("12 candidates")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "12 candidates", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "filse_privati", line["source"])
	assert.Contains(t, line, "timestamp")
}

func TestInit_LevelFallback(t *testing.T) {
	t.Setenv("DEBUG", "")
	var buf bytes.Buffer

	InitWithOutput("nonsense", "text", &buf)
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())

	InitWithOutput("warn", "text", &buf)
	Log.Info("hidden")
	assert.Empty(t, buf.String())

	t.Setenv("DEBUG", "true")
	InitWithOutput("warn", "text", &buf)
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
}
