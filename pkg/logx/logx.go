// Package logx wraps zerolog behind the handful of helpers the rest of the
// CLI uses. Commands stay pterm-first for user-facing output; structured
// logging is for the bridge daemon, page sessions, and --verbose debugging.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv overrides the default log level (debug, info, warn, error).
const LevelEnv = "PROMPTPOLISH_LOG_LEVEL"

type Opts struct {
	// Verbose forces debug level regardless of LevelEnv.
	Verbose bool
	// Writer overrides the destination (defaults to stderr).
	Writer io.Writer
}

func safe(opts ...Opts) Opts {
	if len(opts) == 0 {
		return Opts{}
	}
	return opts[0]
}

// Init configures the global logger. Safe to call more than once; the last
// call wins.
func Init(opts ...Opts) {
	o := safe(opts...)

	out := o.Writer
	if out == nil {
		out = os.Stderr
	}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: f}
	}

	level := parseLevel(os.Getenv(LevelEnv))
	if o.Verbose {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(level)
}

func parseLevel(v string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With returns a child logger carrying the given component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
