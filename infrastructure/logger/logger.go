// Package logger provides the structured logging interface used across the mirror service.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for structured logging.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, fields ...Field)
	// Info logs a message at info level.
	Info(msg string, fields ...Field)
	// Warn logs a message at warning level.
	Warn(msg string, fields ...Field)
	// Error logs a message at error level.
	Error(msg string, fields ...Field)
	// Fatal logs a message at fatal level and exits.
	Fatal(msg string, fields ...Field)
	// With returns a new logger with the given fields attached.
	With(fields ...Field) Logger
	// Sync flushes any buffered log entries.
	Sync() error
}

// Field is a key-value pair attached to a log entry.
type Field = zap.Field

type zapLogger struct {
	logger *zap.Logger
}

// New creates a Logger from cfg. Zero values fall back to the package defaults.
func New(cfg Config) (Logger, error) {
	cfg.SetDefaults()

	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = cfg.Format
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	if cfg.Format == FormatConsole {
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.OutputPaths = cfg.OutputPaths
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	if cfg.Development {
		zapCfg.Development = true
		zapCfg.Sampling = nil
	}

	z, err := zapCfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return &zapLogger{logger: z}, nil
}

// Must creates a new Logger and exits the process if that fails.
func Must(cfg Config) Logger {
	l, err := New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.logger.Fatal(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// String creates a string field.
func String(key, val string) Field { return zap.String(key, val) }

// Int creates an int field.
func Int(key string, val int) Field { return zap.Int(key, val) }

// Int64 creates an int64 field.
func Int64(key string, val int64) Field { return zap.Int64(key, val) }

// Bool creates a bool field.
func Bool(key string, val bool) Field { return zap.Bool(key, val) }

// Duration creates a duration field.
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

// Error creates an error field with the key "error".
func Error(err error) Field { return zap.Error(err) }

// Strings creates a string slice field.
func Strings(key string, val []string) Field { return zap.Strings(key, val) }

// Any creates a field that can hold any value.
func Any(key string, val any) Field { return zap.Any(key, val) }
