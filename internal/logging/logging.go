// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on w at level. A nil w logs to stderr.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Console is New with human readable output, for the ops binary.
func Console(w io.Writer, level string) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}
