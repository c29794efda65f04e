// Package monitoring carries the ambient observability of the server:
// structured logging, prometheus metrics, and process resource sampling.
package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum log verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the output encoding.
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"   // machine-readable, for aggregation
	LogFormatPretty LogFormat = "pretty" // human-readable, for local dev
)

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Out    io.Writer // defaults to stdout
}

// NewLogger builds the process logger. The sink is injectable so tests and
// embedding hosts can capture output.
func NewLogger(config LoggerConfig) zerolog.Logger {
	out := config.Out
	if out == nil {
		out = os.Stdout
	}

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	if config.Format == LogFormatPretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "chatd").
		Logger()
}
