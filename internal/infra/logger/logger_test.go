package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "worker", "prod", "warn")
	log.Info("hidden")
	log.WithField("supply_id", "WB-1").Warn("supply closed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "supply closed", line["msg"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "worker", line["service"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "WB-1", line["supply_id"])
	assert.Contains(t, line, "ts")
}

func TestDevDefaultsToDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "bot", EnvDev, "")
	assert.Equal(t, logrus.DebugLevel, log.Logger.GetLevel())
	_, ok := log.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)

	log = NewWithOutput(&buf, "bot", "prod", "nonsense")
	assert.Equal(t, logrus.InfoLevel, log.Logger.GetLevel())
}
