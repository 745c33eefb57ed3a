// Package logging wires up the gateway's structured logger. It is
// ambient plumbing, not part of the core — adapters and the HTTP server
// take a *zerolog.Logger the same way the teacher's provider adapters
// take a shared *http.Client, as a constructor argument rather than a
// package-level global.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to w (usually os.Stderr) at level,
// which is parsed with zerolog's own level names ("debug", "info",
// "warn", "error") and falls back to info on an unrecognized value.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// NewDefault builds the gateway's standard console-friendly logger for
// cmd/gateway's main().
func NewDefault(level string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(console).Level(lvl).With().Timestamp().Logger()
}
