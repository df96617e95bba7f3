// Package logging provides structured logging for the hvcalls system using zerolog.
//
// There is no package-level logger: every component receives a *zerolog.Logger
// in its constructor, so a single run writes one complete log through one sink.
//
// Example usage:
//
//	logger := logging.NewLoggerFromConfig(logging.DefaultConfig())
//	agg, err := aggregate.New(&logger)
//	logger.Info().Str("input", dir).Msg("Merging hypercall documents")
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Nop returns a logger that discards all output.
func Nop() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// OrNop returns logger, or a discarding logger when logger is nil.
func OrNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
