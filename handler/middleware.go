package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"downloadrelay/observability"
	"downloadrelay/observability/types"

	"github.com/google/uuid"
)

var timeNow = time.Now

// LoggingMiddleware adds structured logging to request processing.
func LoggingMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			logger := provider.Logger("handler")

			workerName, _ := ctx.Value(types.WorkerKey).(string)
			platform, _ := ctx.Value(types.PlatformKey).(string)

			requestLogger := logger.WithFields(types.Fields{
				"request_id": req.ID,
				"method":     req.Method,
				"source":     req.Source,
				"worker":     workerName,
				"platform":   platform,
			})

			requestLogger.Info(ctx, "Processing request", types.Fields{
				"path": req.Path,
			})

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				requestLogger.Error(ctx, "Request failed with error", err, types.Fields{
					"duration_ms": duration.Milliseconds(),
				})
			case !resp.Success():
				requestLogger.Warn(ctx, "Request completed with failure", types.Fields{
					"status":      resp.StatusCode,
					"duration_ms": duration.Milliseconds(),
				})
			default:
				requestLogger.Info(ctx, "Request completed successfully", types.Fields{
					"status":      resp.StatusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}

			resp.Duration = duration

			return resp, err
		}
	}
}

// MetricsMiddleware records metrics for request processing. The recorded
// duration is time to response headers; streamed bodies are not included.
func MetricsMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			metrics := provider.Metrics("handler")

			workerName, _ := ctx.Value(types.WorkerKey).(string)
			if workerName == "" {
				workerName = "unknown"
			}

			metrics.StartOperation(workerName)
			defer metrics.EndOperation(workerName)

			start := time.Now()
			resp, err := next(ctx, req)
			metrics.RecordDuration(workerName, time.Since(start).Seconds())

			switch {
			case err != nil:
				metrics.RecordError(workerName, "processing_error")
			case !resp.Success():
				metrics.RecordError(workerName, statusClass(resp.StatusCode))
			default:
				metrics.RecordSuccess(workerName)
			}

			return resp, err
		}
	}
}

// RecoveryMiddleware recovers from panics and returns an error response.
// It should be the outermost layer to catch all panics.
func RecoveryMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (resp Response, err error) {
			logger := provider.Logger("handler")
			metrics := provider.Metrics("handler")

			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "Panic recovered", fmt.Errorf("%v", r), types.Fields{
						"request_id": req.ID,
						"worker":     ctx.Value(types.WorkerKey),
						"stack":      string(debug.Stack()),
					})

					metrics.RecordError("panic", "panic_recovered")

					// Panic details stay in the logs.
					resp = NewErrorResponse(req.ID, http.StatusInternalServerError, ErrorBody{
						Error:     "Internal server error",
						Timestamp: FormatTimestamp(timeNow()),
					})
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(ctx, req)
		}
	}
}

// TracingMiddleware ensures each request carries a trace ID for correlation
// across services, reusing one supplied by the caller when present.
func TracingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			traceID := extractTraceID(req)
			if traceID == "" {
				traceID = uuid.New().String()
			}
			spanID := uuid.New().String()

			ctx = context.WithValue(ctx, types.TraceIDKey, traceID)
			ctx = context.WithValue(ctx, types.SpanIDKey, spanID)

			req.SetMetadata("trace_id", traceID)
			req.SetMetadata("span_id", spanID)

			resp, err := next(ctx, req)

			resp.SetMetadata("trace_id", traceID)
			resp.SetMetadata("span_id", spanID)

			return resp, err
		}
	}
}

// ValidationMiddleware normalizes incoming requests and fills in defaults.
// Platform events without a method are treated as GET.
func ValidationMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			if req.Timestamp.IsZero() {
				req.Timestamp = time.Now().UTC()
			}

			req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
			if req.Method == "" {
				req.Method = http.MethodGet
			}

			if req.Query == nil {
				req.Query = make(map[string]string)
			}
			if req.Headers == nil {
				req.Headers = make(map[string]string)
			}
			if req.Metadata == nil {
				req.Metadata = make(map[string]string)
			}

			return next(ctx, req)
		}
	}
}

// statusClass maps a status code onto a low-cardinality error label.
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "status_5xx"
	case code >= 400:
		return "status_4xx"
	case code >= 300:
		return "status_3xx"
	default:
		return "status_other"
	}
}

// extractTraceID looks for a caller-supplied trace ID in metadata, then in
// the common tracing headers.
func extractTraceID(req Request) string {
	for _, key := range []string{"trace_id", "x-trace-id", "x-request-id", "correlation-id"} {
		if val, ok := req.Metadata[key]; ok && val != "" {
			return val
		}
	}

	for _, key := range []string{"X-Trace-Id", "X-B3-Traceid", "X-Amzn-Trace-Id", "X-Request-Id"} {
		if val := req.Header(key); val != "" {
			return val
		}
	}

	return ""
}
