// Package relay fetches a remote file and hands it back to the caller as an
// attachment, rewriting content type and filename along the way.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"downloadrelay/config"
	"downloadrelay/handler"
	"downloadrelay/observability/types"
)

// CORS headers sent on successful and preflight replies.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

// Worker implements handler.Worker for the download relay.
type Worker struct {
	fetcher Fetcher
	cfg     config.RelayConfig
	logger  types.Logger
	metrics types.Metrics
	now     func() time.Time
}

var (
	_ handler.Worker          = (*Worker)(nil)
	_ handler.ErrorClassifier = (*Worker)(nil)
)

// NewWorker creates a relay worker around an upstream fetcher.
func NewWorker(fetcher Fetcher, cfg config.RelayConfig, logger types.Logger, metrics types.Metrics) *Worker {
	return &Worker{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "relay"
}

// Health reports the worker ready once it has a fetcher.
func (w *Worker) Health(ctx context.Context) error {
	if w.fetcher == nil {
		return fmt.Errorf("relay: no upstream fetcher configured")
	}
	return nil
}

// Process answers preflights, validates parameters, fetches the upstream
// file and returns it as a streamed attachment.
func (w *Worker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	if request.Method == http.MethodOptions {
		w.metrics.RecordSuccess("preflight")
		return w.preflight(request.ID), nil
	}

	params, err := ParseParams(request.Query, w.cfg.DefaultFilename, MediaType(w.cfg.DefaultType))
	if err != nil {
		w.metrics.RecordError("relay", string(KindMissingParameter))
		w.logger.Warn(ctx, "Rejected download request", types.Fields{
			"request_id": request.ID,
			"reason":     err.Error(),
		})
		return handler.NewErrorResponse(request.ID, http.StatusBadRequest, handler.ErrorBody{Error: MsgMissingURL}), nil
	}

	w.logger.Info(ctx, "Fetching download", types.Fields{
		"request_id": request.ID,
		"url":        params.URL,
		"filename":   params.Filename,
		"type":       string(params.Type),
	})

	upstream, err := w.fetcher.Fetch(ctx, params.URL)
	if err != nil {
		relayErr := Classify(err)
		w.metrics.RecordError("relay", string(relayErr.Kind))
		w.logger.Error(ctx, "Download relay failed", err, types.Fields{
			"request_id": request.ID,
			"url":        params.URL,
			"kind":       string(relayErr.Kind),
			"status":     relayErr.Status,
		})
		return w.errorResponse(request.ID, relayErr), nil
	}

	contentType, extension := ResolveContentType(upstream.ContentType, params.Type)
	filename := SanitizeFilename(params.Filename, extension)

	w.logger.Debug(ctx, "Relaying upstream response", types.Fields{
		"request_id":     request.ID,
		"final_url":      upstream.FinalURL,
		"content_type":   contentType,
		"content_length": upstream.ContentLength,
		"filename":       filename,
	})
	w.metrics.RecordSuccess("relay")

	resp := handler.Response{
		ID:         request.ID,
		StatusCode: http.StatusOK,
		Body: &countingBody{
			ReadCloser: upstream.Body,
			onClose: func(n int64) {
				w.metrics.RecordFileSize(string(params.Type), n)
			},
		},
		ContentLength: upstream.ContentLength,
		ProcessedAt:   w.now().UTC(),
	}
	for key, value := range corsHeaders {
		resp.SetHeader(key, value)
	}
	resp.SetHeader("Content-Type", contentType)
	resp.SetHeader("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	resp.SetHeader("Cache-Control", "no-cache")

	return resp, nil
}

// ClassifyError converts an error raised while transferring a relayed body
// into the same reply shape as a failed fetch.
func (w *Worker) ClassifyError(requestID string, err error) handler.Response {
	return w.errorResponse(requestID, Classify(err))
}

func (w *Worker) preflight(requestID string) handler.Response {
	headers := make(map[string]string, len(corsHeaders))
	for key, value := range corsHeaders {
		headers[key] = value
	}
	return handler.NewBytesResponse(requestID, http.StatusOK, headers, nil)
}

func (w *Worker) errorResponse(requestID string, relayErr *Error) handler.Response {
	details := relayErr.Details()
	if details == "" {
		details = "Unknown error"
	}
	return handler.NewErrorResponse(requestID, relayErr.Status, handler.ErrorBody{
		Error:     relayErr.Message,
		Details:   details,
		Timestamp: handler.FormatTimestamp(w.now()),
	})
}

// countingBody reports the number of bytes read once closed.
type countingBody struct {
	io.ReadCloser
	n       int64
	onClose func(n int64)
	once    sync.Once
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *countingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() { b.onClose(b.n) })
	return err
}
