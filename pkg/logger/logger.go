package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var defaultLogger *logrus.Logger

func init() {
	defaultLogger = logrus.New()

	// Stdout carries the protocol stream, so everything goes to stderr
	defaultLogger.SetOutput(os.Stderr)

	defaultLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	isTest := os.Getenv("GO_ENV") == "test"

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		if isTest {
			logLevel = "silent"
		} else {
			logLevel = "info"
		}
	}

	if logLevel == "silent" {
		defaultLogger.SetOutput(io.Discard)
		return
	}

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	defaultLogger.SetLevel(level)
}

// WithName creates a child logger with a name field
func WithName(name string) *logrus.Entry {
	return defaultLogger.WithField("name", name)
}

// SetLevel sets the logging level
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput redirects log output. Callers must never point this at the
// protocol stream.
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// IsLevelEnabled checks if a log level is enabled
func IsLevelEnabled(level logrus.Level) bool {
	return defaultLogger.IsLevelEnabled(level)
}

// ConfigureFromString configures the logger from a string level
// This is useful for applying configuration from config files
func ConfigureFromString(levelStr string) error {
	// Test mode takes precedence
	if os.Getenv("GO_ENV") == "test" {
		defaultLogger.SetOutput(io.Discard)
		return nil
	}

	if levelStr == "" {
		return nil
	}

	if strings.EqualFold(levelStr, "silent") {
		defaultLogger.SetOutput(io.Discard)
		return nil
	}

	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return err
	}
	defaultLogger.SetLevel(level)
	return nil
}
