// Package observability provides the logger and formatted verbose output
// for the CLI.
package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. Verbose mode lowers the level to
// Debug; jsonFormat switches to structured JSON output for log collection.
func NewLogger(verbose, jsonFormat bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
