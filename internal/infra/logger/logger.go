// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the application logger for the given level and environment.
func New(level, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout) // Default output

	// Set Log Level
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", level, err)
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(parsed)
	}

	// Set Log Formatter
	env := strings.ToLower(environment)
	if env == "production" || env == "staging" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	} else { // Development or other environments
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.Debugf("Log level set to: %s", log.GetLevel().String())
	log.Debugf("Log format set for environment: %s", environment)
	return log
}

// Discard returns an entry that drops everything. Intended for tests.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
