package logger

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogger builds the service logger. Unknown levels fall back to info and
// trace or fatal are clamped to the debug..error range the service logs at.
func SetupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "message"},
	})
	logger.SetLevel(parseLevel(logLevel))
	return logger
}

// SetupTextLogger is used by command line tools writing to a terminal.
func SetupTextLogger(logLevel string, out io.Writer) *logrus.Logger {
	logger := SetupLogger(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(out)
	return logger
}

func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	switch {
	case level > logrus.DebugLevel:
		return logrus.DebugLevel
	case level < logrus.ErrorLevel:
		return logrus.ErrorLevel
	}
	return level
}
