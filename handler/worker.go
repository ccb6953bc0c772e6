package handler

import (
	"context"
)

// Worker defines the interface that each worker must implement.
// Workers hold the business logic and stay unaware of the hosting platform:
// adapters translate platform events into Requests and Responses back into
// platform replies.
type Worker interface {
	// Name returns the worker name used in logs, metrics and health replies.
	Name() string

	// Process handles one invocation. Failures the caller should see are
	// expressed as error Responses; a returned error means the worker could
	// not produce a response at all.
	Process(ctx context.Context, request Request) (Response, error)

	// Health reports whether the worker can serve requests.
	Health(ctx context.Context) error
}

// ErrorClassifier is implemented by workers that know how to turn errors
// raised outside Process (body transfer, buffering limits) into responses.
type ErrorClassifier interface {
	ClassifyError(requestID string, err error) Response
}
