package domain

import (
	"context"
	stderrors "errors"

	"github.com/allisson/admissions/internal/errors"
)

// Outbox-specific error definitions.
var (
	// ErrEventNotFound indicates the event does not exist or cannot be leased.
	ErrEventNotFound = errors.Wrap(errors.ErrNotFound, "outbox event not found")

	// ErrEventLeased indicates another worker currently holds the event's lease.
	ErrEventLeased = errors.Wrap(errors.ErrConflict, "outbox event is leased by another worker")

	// ErrLeaseLost indicates the lease was reclaimed or taken over before the holder recorded
	// the outcome.
	ErrLeaseLost = errors.Wrap(errors.ErrConflict, "outbox event lease lost")

	// ErrReprocessNotAllowed indicates forced reprocessing of terminally failed events is disabled.
	ErrReprocessNotAllowed = errors.Wrap(errors.ErrForbidden, "reprocessing terminally failed events is disabled")

	// ErrDispatcherPaused indicates the dispatcher is paused and skipped the requested work.
	ErrDispatcherPaused = errors.Wrap(errors.ErrUnavailable, "dispatcher is paused")

	// ErrInvalidEventState indicates an unknown event state filter.
	ErrInvalidEventState = errors.Wrap(errors.ErrInvalidInput, "invalid event state")
)

// Error kinds recorded in last_error_kind.
const (
	ErrorKindTransport     = "transport"
	ErrorKindTimeout       = "timeout"
	ErrorKindCanceled      = "canceled"
	ErrorKindSerialization = "serialization"
	ErrorKindCircuitOpen   = "circuit_open"
	ErrorKindNacked        = "nacked"
	ErrorKindInternal      = "internal"
)

// TransportError is returned by publishers when delivery fails. Message is already
// redacted and bounded so it can be persisted as is.
type TransportError struct {
	Kind    string
	Message string
	Err     error
}

// NewTransportError classifies err and builds a TransportError with a sanitized message.
// Context deadline and cancellation errors override kind.
func NewTransportError(kind string, err error) *TransportError {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		kind = ErrorKindTimeout
	case stderrors.Is(err, context.Canceled):
		kind = ErrorKindCanceled
	}

	msg := ""
	if err != nil {
		msg = SanitizeErrorMessage(err.Error())
	}

	return &TransportError{Kind: kind, Message: msg, Err: err}
}

func (e *TransportError) Error() string {
	return e.Kind + ": " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsTransportError converts any error into a TransportError, keeping an existing one intact.
func AsTransportError(err error) *TransportError {
	var te *TransportError
	if stderrors.As(err, &te) {
		return te
	}
	return NewTransportError(ErrorKindInternal, err)
}
