package handler

import (
	"context"
	"io"
	"net/http"
	"sync"

	"downloadrelay/config"
	"downloadrelay/observability"
	"downloadrelay/observability/types"
)

// Handler wraps a Worker with the middleware chain shared by every platform
// adapter. Adapters translate platform events into Requests and write the
// resulting Response back.
type Handler struct {
	worker      Worker
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
}

// Middleware wraps a HandlerFunc to add cross-cutting concerns.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling requests.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// NewHandler creates a new handler with the given worker and configuration.
// Most callers should use the Factory instead.
func NewHandler(worker Worker, provider observability.Provider, config *config.HandlerConfig) *Handler {
	return &Handler{
		worker:      worker,
		obs:         provider,
		config:      config,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle processes a request through the middleware chain and worker.
//
// When a handler timeout is configured, the deadline also covers reading the
// response body: it is released only once the body is closed.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	handler := h.buildHandlerChain()

	var cancel context.CancelFunc
	if h.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
	}

	ctx = context.WithValue(ctx, types.RequestIDKey, req.ID)
	ctx = context.WithValue(ctx, types.WorkerKey, h.worker.Name())
	ctx = context.WithValue(ctx, types.PlatformKey, h.config.Platform)

	resp, err := handler(ctx, req)

	if cancel != nil {
		if resp.Body != nil {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		} else {
			cancel()
		}
	}

	return resp, err
}

// buildHandlerChain builds the middleware chain with the worker at the end.
// The first middleware added is the outermost layer.
func (h *Handler) buildHandlerChain() HandlerFunc {
	handler := h.workerHandler

	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handler = h.middlewares[i](handler)
	}

	return handler
}

// workerHandler is the innermost layer of the middleware chain.
func (h *Handler) workerHandler(ctx context.Context, req Request) (Response, error) {
	return h.worker.Process(ctx, req)
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}

// Observability returns the provider the handler logs and records through.
func (h *Handler) Observability() observability.Provider {
	return h.obs
}

// ErrorResponse converts an error raised outside the worker into a response,
// delegating to the worker when it implements ErrorClassifier.
func (h *Handler) ErrorResponse(requestID string, err error) Response {
	if classifier, ok := h.worker.(ErrorClassifier); ok {
		return classifier.ClassifyError(requestID, err)
	}
	return NewErrorResponse(requestID, http.StatusInternalServerError, ErrorBody{
		Error:     "Internal server error",
		Details:   err.Error(),
		Timestamp: FormatTimestamp(timeNow()),
	})
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
