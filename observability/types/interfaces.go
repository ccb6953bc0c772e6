// Package types holds the observability contracts shared by the relay,
// the handler chain and the platform adapters.
//
// Design Patterns:
//   - Provider Pattern: Manages instances and configuration
//   - Dependency Inversion: Core depends on interfaces, not implementations
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the contract for structured logging.
// Implementations emit JSON lines suitable for log aggregation systems like Loki.
// All methods are context-aware so request and trace identifiers travel with each entry.
type Logger interface {
	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	//
	// Parameters:
	//   - ctx: Context for request tracing and cancellation
	//   - msg: The log message describing the error context
	//   - err: The error object to be logged
	//   - fields: Additional structured fields for context
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message. Filtered out unless the level is "debug".
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that includes fields in every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// Implementations should follow Prometheus naming conventions.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type.
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and error type.
	//
	// Parameters:
	//   - operationType: The type of operation that failed (e.g., "fetch", "relay")
	//   - errorType: The category of error (e.g., "timeout", "connection", "upstream_404")
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, duration float64)

	// RecordFileSize records the size of a relayed payload in bytes.
	RecordFileSize(fileType string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values can be any type that is JSON-serializable.
type Fields map[string]interface{}

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and prefixes metric names.
	ServiceName string

	// Environment specifies the deployment environment
	// ("development", "staging", "production").
	Environment string

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	LogLevel string

	// LogOutput specifies where logs are written. Defaults to os.Stdout.
	LogOutput io.Writer

	// Registerer receives every collector created by the provider.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields
}

// Provider manages the lifecycle of observability components.
// Each component gets its own Logger and Metrics instances; repeated calls
// with the same component name return the same instance.
type Provider interface {
	// Logger returns a Logger instance for the specified component.
	Logger(component string) Logger

	// Metrics returns a Metrics instance for the specified component.
	Metrics(component string) Metrics

	// Close flushes buffered log entries and releases resources.
	Close() error
}

// ContextKey is the type of the context keys read by loggers.
type ContextKey string

// Context keys populated by the handler chain.
const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	WorkerKey    ContextKey = "worker"
	PlatformKey  ContextKey = "platform"
)
