package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request represents one incoming invocation in a platform-agnostic shape.
// Header keys are canonical MIME header keys.
type Request struct {
	// ID is a unique identifier for the request (for tracing)
	ID string `json:"id"`

	// Source identifies where the request came from (http, lambda, ...)
	Source string `json:"source"`

	// Method is the upper-case HTTP method
	Method string `json:"method"`

	// Path is the request path as seen by the platform
	Path string `json:"path"`

	// Query holds the first value of every query parameter
	Query map[string]string `json:"query,omitempty"`

	// Headers holds the first value of every request header
	Headers map[string]string `json:"headers,omitempty"`

	// Metadata contains additional context (trace ids, platform attributes)
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp when the request was created
	Timestamp time.Time `json:"timestamp"`
}

// Response represents the outcome of an invocation.
// Body, when set, is owned by the adapter that writes the response and is
// always closed by it.
type Response struct {
	// ID correlates with the request ID
	ID string `json:"id"`

	// StatusCode is the HTTP status to reply with
	StatusCode int `json:"status_code"`

	// Headers are written verbatim on the reply
	Headers map[string]string `json:"headers,omitempty"`

	// Body streams the reply payload
	Body io.ReadCloser `json:"-"`

	// ContentLength is the body length, or -1 when unknown
	ContentLength int64 `json:"content_length"`

	// Metadata contains additional response context
	Metadata map[string]string `json:"metadata,omitempty"`

	// ProcessedAt timestamp
	ProcessedAt time.Time `json:"processed_at"`

	// Duration of processing (time to first byte for streamed bodies)
	Duration time.Duration `json:"duration,omitempty"`
}

// ErrorBody is the JSON document returned for every failed invocation.
type ErrorBody struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewRequest creates a request with a generated ID and timestamp.
func NewRequest(source, method string, query map[string]string) Request {
	if query == nil {
		query = make(map[string]string)
	}
	return Request{
		ID:        uuid.New().String(),
		Source:    source,
		Method:    strings.ToUpper(method),
		Query:     query,
		Headers:   make(map[string]string),
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UTC(),
	}
}

// QueryParam returns a query parameter or "" when absent.
func (r *Request) QueryParam(key string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query[key]
}

// Header returns a request header by any casing of its name.
func (r *Request) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[http.CanonicalHeaderKey(key)]
}

// SetMetadata adds or updates metadata on the request.
func (r *Request) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// GetMetadata retrieves metadata from the request.
func (r *Request) GetMetadata(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	val, ok := r.Metadata[key]
	return val, ok
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// SetHeader sets a reply header.
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// SetMetadata adds or updates metadata on the response.
func (r *Response) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// NewBytesResponse creates a response with an in-memory body.
func NewBytesResponse(id string, statusCode int, headers map[string]string, body []byte) Response {
	if headers == nil {
		headers = make(map[string]string)
	}
	resp := Response{
		ID:            id,
		StatusCode:    statusCode,
		Headers:       headers,
		ContentLength: int64(len(body)),
		Metadata:      make(map[string]string),
		ProcessedAt:   time.Now().UTC(),
	}
	if len(body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	return resp
}

// NewErrorResponse creates a JSON error response. Error replies stay
// readable cross-origin.
func NewErrorResponse(id string, statusCode int, body ErrorBody) Response {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = []byte(`{"error":` + strconv.Quote(body.Error) + `}`)
	}

	return NewBytesResponse(id, statusCode, map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}, payload)
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with millisecond
// precision, e.g. 2024-05-01T10:00:00.000Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// CloseBody closes a response body if one is set.
func (r *Response) CloseBody() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
