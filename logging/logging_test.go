package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug", "json")

	log.Debug().Str("bar", "2025-05-01T13:30:00Z").Msg("filtered")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "debug", rec["level"])
	assert.Equal(t, "filtered", rec["message"])
	assert.Equal(t, "2025-05-01T13:30:00Z", rec["bar"])
	assert.Contains(t, rec, "time")
}

func TestNewWriterLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, NewWriter(&bytes.Buffer{}, tt.level, "json").GetLevel())
		})
	}
}

func TestNewWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info", "console")

	log.Debug().Msg("hidden")
	log.Info().Int("trades", 2).Msg("session finished")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session finished")
	assert.Contains(t, out, "trades=2")
}
