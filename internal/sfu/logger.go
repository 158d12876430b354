package sfu

import (
	"go.uber.org/zap"
)

// Logger mirrors the tagged, printf-style logger the worker and every
// resource type use for debug tracing. Kept as an interface so tests
// can swap in a no-op implementation.
type Logger interface {
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

var baseLogger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	baseLogger = l
}

// SetBaseLogger lets the host process install a configured logger
// (e.g. development mode with console encoding) before any worker is
// spawned.
func SetBaseLogger(l *zap.Logger) {
	if l != nil {
		baseLogger = l
	}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger returns a component-tagged logger, e.g. NewLogger("Worker"),
// NewLogger("Consumer"). Tags show up as a structured "component" field
// rather than a string prefix, since the backing logger is zap.
func NewLogger(component string) Logger {
	return &zapLogger{s: baseLogger.Sugar().With("component", component)}
}

func (l *zapLogger) Debug(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

func (l *zapLogger) Warn(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}

func (l *zapLogger) Error(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}
