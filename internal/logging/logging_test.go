package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/authnotify/internal/model"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(model.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Str("component", "push").Msg("connected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "push", entry["component"])
	assert.Equal(t, "connected", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(model.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)

	level, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestTokenPreview(t *testing.T) {
	assert.Equal(t, "eyJhbGciOi...", TokenPreview("eyJhbGciOiJIUzI1NiJ9.payload"))
	assert.Equal(t, "****", TokenPreview("abcd"))
}
