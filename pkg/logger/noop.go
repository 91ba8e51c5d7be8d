package logger

import (
	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// Logger is the eigensdk structured logger. Every component in this module
// takes one and tolerates nil through EnsureLogger.
type Logger = sdklogging.Logger

// NoOpLogger discards everything. It is what components fall back to when
// the caller did not hand them a logger.
type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Infof(format string, args ...interface{})       {}
func (l *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Debugf(format string, args ...interface{})      {}
func (l *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Errorf(format string, args ...interface{})      {}
func (l *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *NoOpLogger) Warnf(format string, args ...interface{})       {}
func (l *NoOpLogger) Fatal(msg string, keysAndValues ...interface{}) {}
func (l *NoOpLogger) Fatalf(format string, args ...interface{})      {}
func (l *NoOpLogger) With(keysAndValues ...interface{}) Logger       { return l }
func (l *NoOpLogger) WithComponent(componentName string) Logger      { return l }
func (l *NoOpLogger) WithName(name string) Logger                    { return l }
func (l *NoOpLogger) WithServiceName(serviceName string) Logger      { return l }
func (l *NoOpLogger) WithHostName(hostName string) Logger            { return l }
func (l *NoOpLogger) Sync() error                                    { return nil }

func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// EnsureLogger returns logger, or a no-op logger when it is nil.
func EnsureLogger(logger Logger) Logger {
	if logger == nil {
		return NewNoOpLogger()
	}
	return logger
}

// New builds a zap backed logger for the given environment ("development"
// or "production"). An unknown environment falls back to production.
func New(environment string) (Logger, error) {
	level := sdklogging.LogLevel(environment)
	if level != sdklogging.Development {
		level = sdklogging.Production
	}
	return sdklogging.NewZapLogger(level)
}
