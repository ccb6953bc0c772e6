package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a relay failure.
type Kind string

const (
	KindMissingParameter  Kind = "MISSING_PARAMETER"
	KindConnectionFailure Kind = "CONNECTION_FAILURE"
	KindTimeout           Kind = "TIMEOUT"
	KindUpstreamHTTP      Kind = "UPSTREAM_HTTP_ERROR"
	KindUnknown           Kind = "UNKNOWN_FAILURE"
)

// Client-facing error messages.
const (
	MsgMissingURL        = "Download URL is required"
	MsgConnectionFailure = "Unable to connect to download source"
	MsgTimeout           = "Download request timed out"
	MsgUpstreamStatus    = "Download source returned error: %d"
	MsgUnknown           = "Failed to download file"
)

var (
	// ErrMissingURL is returned when the url parameter is absent or empty.
	ErrMissingURL = &Error{Kind: KindMissingParameter, Status: http.StatusBadRequest, Message: MsgMissingURL}

	// ErrFetchTimeout marks an upstream that did not answer within the fetch budget.
	ErrFetchTimeout = errors.New("upstream response timed out")

	// ErrTooManyRedirects marks a redirect chain longer than allowed.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Error is a classified relay failure carrying the reply status and message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the underlying error text shown to clients.
func (e *Error) Details() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// StatusError reports an upstream reply other than 200 OK.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// Classify maps any fetch or transfer error onto a relay Error.
//
// Upstream statuses of 300 and above are mirrored to the client; other
// non-200 statuses and unrecognised failures become 500.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 300 {
			return &Error{
				Kind:    KindUpstreamHTTP,
				Status:  statusErr.StatusCode,
				Message: fmt.Sprintf(MsgUpstreamStatus, statusErr.StatusCode),
				Err:     err,
			}
		}
		return &Error{
			Kind:    KindUnknown,
			Status:  http.StatusInternalServerError,
			Message: MsgUnknown,
			Err:     fmt.Errorf("unexpected upstream status: %d", statusErr.StatusCode),
		}
	}

	// The fetch budget wins over whatever the transport was doing when it expired.
	if errors.Is(err, ErrFetchTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(err)
	}

	if isConnectionFailure(err) {
		return &Error{Kind: KindConnectionFailure, Status: http.StatusBadGateway, Message: MsgConnectionFailure, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(err)
	}

	return &Error{Kind: KindUnknown, Status: http.StatusInternalServerError, Message: MsgUnknown, Err: err}
}

func timeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: MsgTimeout, Err: err}
}

func isConnectionFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
