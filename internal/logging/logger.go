package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SafeLogger wraps zap.Logger so calls on a nil or uninitialised logger are no-ops
type SafeLogger struct {
	logger *zap.Logger
}

var (
	// Logger is the global logger instance. It starts as a nop logger until InitLogger runs.
	Logger = &SafeLogger{logger: zap.NewNop()}
)

// New wraps an existing zap logger
func New(l *zap.Logger) *SafeLogger {
	return &SafeLogger{logger: l}
}

// InitLogger initializes the global logger
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	l, err := config.Build(
		zap.AddCallerSkip(1),
		zap.Fields(
			zap.String("service", "app-scim-sync"),
			zap.String("version", "v1"),
		),
	)
	if err != nil {
		return err
	}

	Logger = &SafeLogger{logger: l}
	return nil
}

func (l *SafeLogger) Info(msg string, fields ...zap.Field) {
	if l != nil && l.logger != nil {
		l.logger.Info(msg, fields...)
	}
}

func (l *SafeLogger) Warn(msg string, fields ...zap.Field) {
	if l != nil && l.logger != nil {
		l.logger.Warn(msg, fields...)
	}
}

func (l *SafeLogger) Debug(msg string, fields ...zap.Field) {
	if l != nil && l.logger != nil {
		l.logger.Debug(msg, fields...)
	}
}

func (l *SafeLogger) Error(msg string, fields ...zap.Field) {
	if l != nil && l.logger != nil {
		l.logger.Error(msg, fields...)
	}
}

// Fatal logs and exits. It exits even when the logger is uninitialised.
func (l *SafeLogger) Fatal(msg string, fields ...zap.Field) {
	if l != nil && l.logger != nil {
		l.logger.Fatal(msg, fields...)
	}
	os.Exit(1)
}

// With returns a child logger carrying the given fields
func (l *SafeLogger) With(fields ...zap.Field) *SafeLogger {
	if l == nil || l.logger == nil {
		return l
	}
	return &SafeLogger{logger: l.logger.With(fields...)}
}

// Unwrap returns the underlying zap logger, or a nop logger
func (l *SafeLogger) Unwrap() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}

// Sync flushes buffered log entries
func (l *SafeLogger) Sync() {
	if l != nil && l.logger != nil {
		_ = l.logger.Sync()
	}
}
