// Package logger wraps the eigensdk logger with the helpers the console
// needs: a silent logger for optional parameters and tests, and a quiet
// logger that keeps interactive output readable.
package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

type Logger = sdklogging.Logger

type nopLogger struct{}

var _ Logger = nopLogger{}

func (nopLogger) Debug(msg string, tags ...any)       {}
func (nopLogger) Info(msg string, tags ...any)        {}
func (nopLogger) Warn(msg string, tags ...any)        {}
func (nopLogger) Error(msg string, tags ...any)       {}
func (nopLogger) Fatal(msg string, tags ...any)       {}
func (nopLogger) Debugf(template string, args ...any) {}
func (nopLogger) Infof(template string, args ...any)  {}
func (nopLogger) Warnf(template string, args ...any)  {}
func (nopLogger) Errorf(template string, args ...any) {}
func (nopLogger) Fatalf(template string, args ...any) {}
func (l nopLogger) With(tags ...any) Logger           { return l }

func NewNoOpLogger() Logger {
	return nopLogger{}
}

// EnsureLogger falls back to a no-op logger when lgr is nil.
func EnsureLogger(lgr Logger) Logger {
	if lgr == nil {
		return NewNoOpLogger()
	}
	return lgr
}

// quietLogger drops debug and info records. The interactive console prints
// its own progress, so only warnings and errors reach the log.
type quietLogger struct {
	Logger
}

var _ Logger = quietLogger{}

// Quiet wraps lgr so that only warnings and above are emitted.
func Quiet(lgr Logger) Logger {
	return quietLogger{Logger: EnsureLogger(lgr)}
}

func (quietLogger) Debug(msg string, tags ...any)       {}
func (quietLogger) Info(msg string, tags ...any)        {}
func (quietLogger) Debugf(template string, args ...any) {}
func (quietLogger) Infof(template string, args ...any)  {}

func (l quietLogger) With(tags ...any) Logger {
	return quietLogger{Logger: l.Logger.With(tags...)}
}
