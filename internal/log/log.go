package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	out   io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	level           = zerolog.InfoLevel
)

// SetVerbose switches every logger created afterwards to debug level.
func SetVerbose(verbose bool) {
	if verbose {
		level = zerolog.DebugLevel
	} else {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// SetOutput redirects log output. Tests use it to silence or capture logs.
func SetOutput(w io.Writer) {
	out = w
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger()
}
