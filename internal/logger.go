package internal

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// This interface will be implemented by the client, so its
// own logger can be provided. If none is provided the default
// logger backed by hclog will be used.
type Logger interface {
	// Utilities to log at info level.
	Info(v ...interface{})
	Infof(format string, v ...interface{})

	// Utilities to log at warn level.
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})

	// Utilities to log at error level.
	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	// Utilities to log at debug level.
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
}

// The default logger used if the user does not provide its
// own implementation. Wraps a hclog.Logger so records are
// structured and leveled.
type DefaultLogger struct {
	logger hclog.Logger
}

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "evstream",
			Level:  hclog.Info,
			Output: os.Stderr,
		}),
	}
}

// Creates a logger that also emits debug records, used
// mostly by the tests.
func NewDebugLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "evstream",
			Level:  hclog.Debug,
			Output: os.Stderr,
		}),
	}
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.logger.Info(fmt.Sprint(v...))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.logger.Warn(fmt.Sprint(v...))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	l.logger.Debug(fmt.Sprint(v...))
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
