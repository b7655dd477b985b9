// Package logging provides the thin logging seam used across tappet.
package logging

import "log"

// Logger is the minimal sink the tunnel and CLI depend on, so tests can
// inject a recorder instead of writing to stderr.
type Logger interface {
	Printf(format string, v ...any)
}

// StdLogger backs Logger with the standard library logger.
type StdLogger struct{}

// NewStdLogger returns a Logger that writes through log.Printf.
func NewStdLogger() Logger {
	return StdLogger{}
}

func (StdLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}
