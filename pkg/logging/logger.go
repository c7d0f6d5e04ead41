// Package logging provides the shared structured logging setup for every
// gateway in this repository.
//
// Usage:
//
//	log := logging.New("imagegw")
//	log.WithField("session_id", sid).Info("upload staged")
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a logrus logger pre-configured for a named gateway process.
// Output is JSON to stdout. Level is controlled by the LOG_LEVEL env var
// (default: info). The service field is embedded in every log line.
func New(service string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetOutput(os.Stdout)

	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	level, err := logrus.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log.WithField("service", service)
}
