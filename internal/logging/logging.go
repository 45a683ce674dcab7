// Package logging sets up the process-wide logrus.Logger, following
// the teacher's module-level logrus.New() in proxy/main.go, extended
// with a LOG_LEVEL parse step the teacher's fixed-level logger didn't
// need.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stderr at the level named by level
// (an empty string or an unrecognized name falls back to info).
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}
