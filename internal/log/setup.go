// Package log configures the process-wide zerolog logger and provides
// progress feedback for long folds.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Setup installs the global logger. format is auto, console or json; auto
// picks the console writer only when out is a terminal.
func Setup(level, format string, out *os.File) error {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(Writer(format, out)).With().Timestamp().Logger()
	return nil
}

// Writer resolves the output format for out.
func Writer(format string, out *os.File) io.Writer {
	switch strings.ToLower(format) {
	case "json":
		return out
	case "console":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		if IsTerminal(out) {
			return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
		return out
	}
}

// IsTerminal reports whether f is attached to a TTY.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
