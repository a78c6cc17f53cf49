// Package logging builds the console logger shared by the session and
// module controllers. The logger is passed down as a constructor
// argument, never held as a package global, so tests can silence it
// per instance.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w. verbose raises the level to
// Debug, which traces every CAN frame sent and received.
func New(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
