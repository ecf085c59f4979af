// Package log provides structured logging for pteosal using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with OSAL-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Default returns the global logger, or a no-op logger before Init.
func Default() *Logger {
	if L != nil {
		return L
	}
	return NewNop()
}

// Trace logs a lifecycle event at debug level. This is the primary method
// for the OSAL to report its activity.
func (l *Logger) Trace(tid int32, category, name, detail string) {
	l.Debug("osal",
		zap.String("cat", category),
		zap.String("op", name),
		zap.String("detail", detail),
		zap.Int32("tid", tid),
	)
}

// ThreadFatal logs why a new thread terminated itself during startup.
func (l *Logger) ThreadFatal(tid int32, reason string, err error) {
	l.Error("thread abort",
		zap.Int32("tid", tid),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("cat", category))}
}

// Field helpers for common patterns.

// TID creates a kernel thread id field.
func TID(tid int32) zap.Field {
	return zap.Int32("tid", tid)
}

// Sem creates a semaphore handle field.
func Sem(name string, id uint32) zap.Field {
	return zap.Uint32(name, id)
}
