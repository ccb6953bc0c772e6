package platforms

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"downloadrelay/handler"
	"downloadrelay/observability"

	"github.com/google/uuid"
)

// HTTPAdapter adapts the handler for standard HTTP servers: local
// development, containers or anything else speaking net/http.
type HTTPAdapter struct {
	handler *handler.Handler
	logger  observability.Logger
	metrics observability.Metrics
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h *handler.Handler) *HTTPAdapter {
	return &HTTPAdapter{
		handler: h,
		logger:  h.Observability().Logger("http"),
		metrics: h.Observability().Metrics("http"),
	}
}

// ServeHTTP implements http.Handler. Response bodies are streamed to the
// client as they are read.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.handler.Config().EnableHealth && isHealthCheck(r.URL.Path) {
		a.handleHealth(w, r)
		return
	}

	req := a.buildRequest(r)

	resp, err := a.handler.Handle(r.Context(), req)
	if err != nil && resp.StatusCode == 0 {
		resp = a.handler.ErrorResponse(req.ID, err)
	}
	if resp.ID == "" {
		resp.ID = req.ID
	}

	a.writeResponse(w, r, resp)
}

func isHealthCheck(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez":
		return true
	}
	return false
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := a.handler.Health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	})
}

// buildRequest creates a platform-agnostic request from an HTTP request.
func (a *HTTPAdapter) buildRequest(r *http.Request) handler.Request {
	requestID := extractRequestID(r.Header)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[http.CanonicalHeaderKey(key)] = values[0]
		}
	}

	metadata := map[string]string{
		"http_host":   r.Host,
		"remote_addr": r.RemoteAddr,
	}
	if traceID := r.Header.Get("X-Trace-Id"); traceID != "" {
		metadata["trace_id"] = traceID
	}

	return handler.Request{
		ID:        requestID,
		Source:    handler.PlatformHTTP,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     query,
		Headers:   headers,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// extractRequestID looks for a caller-supplied request ID.
func extractRequestID(h http.Header) string {
	for _, key := range []string{"X-Request-Id", "X-Correlation-Id", "Request-Id"} {
		if id := h.Get(key); id != "" {
			return id
		}
	}
	return ""
}

// writeResponse writes status and headers, then streams the body. Errors
// after the status line is sent can only be logged.
func (a *HTTPAdapter) writeResponse(w http.ResponseWriter, r *http.Request, resp handler.Response) {
	defer func() { _ = resp.CloseBody() }()

	header := w.Header()
	for key, value := range resp.Headers {
		header.Set(key, value)
	}
	header.Set("X-Request-Id", resp.ID)
	for key, value := range resp.Metadata {
		header.Set(metadataHeader(key), value)
	}
	if resp.Body != nil && resp.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	w.WriteHeader(resp.StatusCode)

	if resp.Body == nil || r.Method == http.MethodHead {
		return
	}

	written, err := io.Copy(flushWriter{w}, resp.Body)
	if err != nil {
		fields := observability.Fields{
			"request_id":    resp.ID,
			"bytes_written": written,
		}
		if r.Context().Err() != nil || errors.Is(err, io.ErrClosedPipe) {
			a.logger.Warn(r.Context(), "Client went away during response stream", fields)
		} else {
			a.logger.Error(r.Context(), "Response stream interrupted", err, fields)
		}
		a.metrics.RecordError("stream", "stream_interrupted")
		return
	}

	a.logger.Debug(r.Context(), "Response streamed", observability.Fields{
		"request_id":    resp.ID,
		"bytes_written": written,
	})
}

// metadataHeader maps a metadata key such as trace_id onto X-Trace-Id.
func metadataHeader(key string) string {
	return http.CanonicalHeaderKey("x-" + strings.ReplaceAll(key, "_", "-"))
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if flusher, ok := f.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return n, err
}
