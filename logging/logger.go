package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger creates a configured logger. Unknown levels fall back to info.
func NewLogger(opts Options) *logrus.Logger {
	logger := logrus.New()
	if opts.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// Component returns an entry tagged with the component name.
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
