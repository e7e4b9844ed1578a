package hal

import "go.uber.org/zap"

// Logger is the optional logging sink of §6: line-oriented, side-effect
// only, never back-pressuring the core. A nil *Logger is valid and every
// method is a no-op, so packages can hold a *Logger field unconditionally
// instead of threading a bool "logging enabled" flag everywhere.
type Logger struct {
	z *zap.Logger
}

// NewLogger wraps a *zap.Logger. Pass nil to get a no-op sink.
func NewLogger(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// NoopLogger returns a sink that discards everything.
func NoopLogger() *Logger { return &Logger{} }

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(msg, fields...)
}
