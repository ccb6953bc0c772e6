package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"downloadrelay/observability/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestZapLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		logMethod func(*ZapLogger, context.Context)
		shouldLog bool
	}{
		{
			name:     "debug level logs debug",
			logLevel: "debug",
			logMethod: func(l *ZapLogger, ctx context.Context) {
				l.Debug(ctx, "test", nil)
			},
			shouldLog: true,
		},
		{
			name:     "info level skips debug",
			logLevel: "info",
			logMethod: func(l *ZapLogger, ctx context.Context) {
				l.Debug(ctx, "test", nil)
			},
			shouldLog: false,
		},
		{
			name:     "warn level skips info",
			logLevel: "warn",
			logMethod: func(l *ZapLogger, ctx context.Context) {
				l.Info(ctx, "test", nil)
			},
			shouldLog: false,
		},
		{
			name:     "error level logs error",
			logLevel: "error",
			logMethod: func(l *ZapLogger, ctx context.Context) {
				l.Error(ctx, "test", errors.New("boom"), nil)
			},
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New("svc", "test", tt.logLevel, &buf, nil)

			tt.logMethod(l, context.Background())

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestZapLogger_EntryShape(t *testing.T) {
	var buf bytes.Buffer
	l := New("download-relay.relay", "production", "info", &buf, types.Fields{"version": "1.0.0"})

	ctx := context.WithValue(context.Background(), types.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, types.TraceIDKey, "trace-1")

	l.Error(ctx, "Download relay failed", errors.New("dial tcp: refused"), types.Fields{
		"url":    "https://example.com/a.mp4",
		"status": 502,
	})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Download relay failed", entry["message"])
	assert.Equal(t, "download-relay.relay", entry["service"])
	assert.Equal(t, "production", entry["env"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "dial tcp: refused", entry["error"])
	assert.Equal(t, "*errors.errorString", entry["error_type"])
	assert.Equal(t, "https://example.com/a.mp4", entry["url"])
	assert.EqualValues(t, 502, entry["status"])
	assert.NotEmpty(t, entry["timestamp"])
	assert.NotEmpty(t, entry["hostname"])
}

func TestZapLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New("svc", "test", "info", &buf, nil)

	child := base.WithFields(types.Fields{"worker": "download-relay"})
	child.Info(context.Background(), "child", nil)
	base.Info(context.Background(), "parent", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "download-relay", entries[0]["worker"])
	_, inherited := entries[1]["worker"]
	assert.False(t, inherited, "parent logger must not see child fields")
}
