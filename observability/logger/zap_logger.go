// Package logger provides the structured JSON logger used by every component.
// Entries keep a flat, Loki-friendly shape: timestamp, level, message, service,
// env and hostname, followed by context and call-specific fields.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"downloadrelay/observability/types"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel converts a string representation to a zap level.
// Unrecognized levels default to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ZapLogger implements types.Logger on top of a zap core.
type ZapLogger struct {
	base *zap.Logger
}

// New creates a ZapLogger writing JSON lines to output.
// If output is nil, it defaults to os.Stdout.
//
// Parameters:
//   - serviceName: Name of the service for identification in logs
//   - environment: Deployment environment (e.g., "production", "staging")
//   - logLevel: Minimum log level to output ("debug", "info", "warn", "error")
//   - output: Where to write log entries
//   - additionalFields: Fields to include in every log entry
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *ZapLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	if output == nil {
		output = os.Stdout
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		NameKey:        "logger",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(output),
		zap.NewAtomicLevelAt(ParseLevel(logLevel)),
	)

	base := zap.New(core).With(
		zap.String("service", serviceName),
		zap.String("env", environment),
		zap.String("hostname", hostname),
	)
	base = base.With(toZapFields(additionalFields)...)

	return &ZapLogger{base: base}
}

// Info logs an informational message at INFO level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	l.base.Info(msg, l.entryFields(ctx, nil, fields)...)
}

// Error logs an error message at ERROR level. The error text and its dynamic
// type are both recorded.
func (l *ZapLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	l.base.Error(msg, l.entryFields(ctx, err, fields)...)
}

// Warn logs a warning message at WARN level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	l.base.Warn(msg, l.entryFields(ctx, nil, fields)...)
}

// Debug logs a debug message at DEBUG level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	l.base.Debug(msg, l.entryFields(ctx, nil, fields)...)
}

// WithFields returns a new logger carrying fields on every entry.
func (l *ZapLogger) WithFields(fields types.Fields) types.Logger {
	return &ZapLogger{base: l.base.With(toZapFields(fields)...)}
}

// Sync flushes any buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// entryFields merges context values, the error and call-specific fields.
func (l *ZapLogger) entryFields(ctx context.Context, err error, fields types.Fields) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+4)

	if ctx != nil {
		for _, key := range []types.ContextKey{types.TraceIDKey, types.RequestIDKey} {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				out = append(out, zap.String(string(key), v))
			}
		}
	}

	if err != nil {
		out = append(out,
			zap.String("error", err.Error()),
			zap.String("error_type", fmt.Sprintf("%T", err)),
		)
	}

	return append(out, toZapFields(fields)...)
}

func toZapFields(fields types.Fields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
