// Package logging builds the zerolog loggers used across chunkscribe.
//
// Diagnostics go to stderr through zerolog. User-facing progress lines are
// written separately by the CLI and never pass through here.
package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatPretty  = "pretty"
	FormatJSON    = "json"
)

// Common field names.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldStage     = "stage"
	FieldChunk     = "chunk"
	FieldProvider  = "provider"
)

var (
	validLevels  = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	validFormats = []string{FormatConsole, FormatPretty, FormatJSON}
)

// Config selects the log level and output format.
type Config struct {
	Level   string `mapstructure:"log-level"`
	Format  string `mapstructure:"log-format"`
	NoColor bool   `mapstructure:"no-color"`
}

// ApplyDefaults fills unset fields: warn level, console format.
// The CLI is quiet by default; --log-level debug shows engine commands.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "warn"
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
}

// Validate reports unknown levels or formats.
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, strings.ToLower(c.Level)) {
		return fmt.Errorf("log-level must be one of %v (got: %s)", validLevels, c.Level)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Format)) {
		return fmt.Errorf("log-format must be one of %v (got: %s)", validFormats, c.Format)
	}
	return nil
}

// New builds a logger writing to w (stderr when nil).
// An unparsable level falls back to info.
func New(cfg Config, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	switch strings.ToLower(cfg.Format) {
	case FormatConsole, FormatPretty:
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    cfg.NoColor,
			TimeFormat: time.TimeOnly,
		})
	default:
		zl = zerolog.New(w)
	}

	return zl.Level(level).With().Timestamp().Logger()
}

// Component tags a logger with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(FieldComponent, name).Logger()
}
