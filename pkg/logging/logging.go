// Package logging provides the shared logrus setup for roundtable
// components plus a PrettyLogger for user-facing console output.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseLogger *logrus.Logger
	baseOnce   sync.Once
)

// NewLogger returns a component-scoped entry on the shared logger.
// The log level is controlled by ROUNDTABLE_LOG_LEVEL (default: warn).
func NewLogger(component string) *logrus.Entry {
	baseOnce.Do(initBaseLogger)
	return baseLogger.WithField("component", component)
}

func initBaseLogger() {
	baseLogger = logrus.New()
	baseLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := logrus.WarnLevel
	if raw := os.Getenv("ROUNDTABLE_LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	baseLogger.SetLevel(level)
	baseLogger.SetOutput(logOutput())
}

// logOutput returns a log file under the data directory when it is
// writable, so debug output does not clutter interactive sessions.
func logOutput() io.Writer {
	if os.Getenv("ROUNDTABLE_LOG_STDERR") != "" {
		return os.Stderr
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Stderr
	}
	dir := filepath.Join(home, ".roundtable")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return os.Stderr
	}
	f, err := os.OpenFile(filepath.Join(dir, "roundtable.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return os.Stderr
	}
	return f
}
