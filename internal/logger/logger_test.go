package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/bilal/clashstat/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	saved, level := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(level)
	})
}

func TestInitJSON(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	Init(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("endpoint", "/traffic").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/traffic", entry["endpoint"])
	assert.Equal(t, "shown", entry["message"])
}

func TestInitConsoleDefault(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	Init(config.LoggingConfig{Level: "bogus"}, &buf)

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestRestoreGlobals(t *testing.T) {
	before := log.Logger
	var buf bytes.Buffer

	t.Run("init", func(t *testing.T) {
		restoreGlobals(t)
		Init(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	})

	log.Info().Msg("after subtest")
	assert.NotContains(t, buf.String(), "after subtest")
	assert.Equal(t, before, log.Logger)
}
