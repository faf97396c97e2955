package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/frontstack/internal/config"
)

func TestNewLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{
		ServiceName: "frontctl",
		AWSRegion:   "us-east-1",
		AWSAccount:  "111122223333",
		StackPrefix: "NextJs",
		LogLevel:    "info",
	}, &buf)

	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "frontctl", line["service"])
	assert.Equal(t, "us-east-1", line["region"])
	assert.Equal(t, "111122223333", line["account"])
	assert.Equal(t, "NextJs", line["stack_prefix"])
	assert.Equal(t, "hello", line["message"])
}

func TestNewLogger_OmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{LogLevel: "info"}, &buf)
	logger.Info().Msg("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "service")
	assert.NotContains(t, line, "region")
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{LogLevel: "warn"}, &buf)
	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger = newLogger(&config.Config{LogLevel: "bogus"}, &buf)
	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.NotContains(t, buf.String(), "dropped")
}
