package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("tolask-node", "debug", &buf)
	log.WithField("call_id", "abc").Debug("call executed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "call executed", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "tolask-node", entry["service"])
	assert.Equal(t, "abc", entry["call_id"])
}

func TestConvertLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, convertLevel("WARN"))
	assert.Equal(t, logrus.InfoLevel, convertLevel("verbose"))
	assert.Equal(t, logrus.ErrorLevel, convertLevel(ErrorLevel))
}
