package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("dropped")
	logger.WithField("asset_id", "a1").Warn("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "a1", line["asset_id"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, New("loud", nil).GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("", nil).GetLevel())
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", &buf)
	LogError(logger, "httpapi", "scan", errors.New("queue unavailable"), logrus.Fields{"session_id": "s1"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "queue unavailable", line["msg"])
	assert.Equal(t, "httpapi", line["module"])
	assert.Equal(t, "scan", line["funcName"])
	assert.Equal(t, "s1", line["session_id"])

	buf.Reset()
	LogError(logger, "httpapi", "scan", nil, nil)
	assert.Zero(t, buf.Len())
}
