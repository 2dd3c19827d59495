// Package logging configures the process-wide zerolog logger used by
// cmd/piverif.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog's global logger to write human-readable
// console output to w at the requested level. verbose selects debug
// level regardless of level.
func Init(w io.Writer, level string, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	if verbose {
		parsed = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(parsed)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	return logger
}
