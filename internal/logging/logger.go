package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/config"
)

// NewLogger creates a structured zerolog.Logger with deployment context fields
// from the config. Non-empty fields are added automatically. LOG_FORMAT=console
// switches to human-readable output on stderr for interactive CLI use.
func NewLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return newLogger(cfg, out)
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	ctx := zerolog.New(out).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.AWSRegion != "" {
		ctx = ctx.Str("region", cfg.AWSRegion)
	}
	if cfg.AWSAccount != "" {
		ctx = ctx.Str("account", cfg.AWSAccount)
	}
	if cfg.StackPrefix != "" {
		ctx = ctx.Str("stack_prefix", cfg.StackPrefix)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
