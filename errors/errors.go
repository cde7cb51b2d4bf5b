package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindInvalidURL            Kind = "invalid_url"
	KindTranscriptUnavailable Kind = "transcript_unavailable"
	KindNetwork               Kind = "network_error"
	KindBackendUnavailable    Kind = "backend_unavailable"
	KindBackendTimeout        Kind = "backend_timeout"
	KindBackendError          Kind = "backend_error"
	KindQueueFull             Kind = "queue_full"
	KindCanceled              Kind = "canceled"
	KindInternal              Kind = "internal"
)

// StatusClientClosedRequest is reported when the caller went away before a response.
const StatusClientClosedRequest = 499

var kindCodes = map[Kind]int{
	KindInvalidRequest:        http.StatusBadRequest,
	KindInvalidURL:            http.StatusBadRequest,
	KindTranscriptUnavailable: http.StatusUnprocessableEntity,
	KindNetwork:               http.StatusBadGateway,
	KindBackendUnavailable:    http.StatusBadGateway,
	KindBackendTimeout:        http.StatusGatewayTimeout,
	KindBackendError:          http.StatusBadGateway,
	KindQueueFull:             http.StatusServiceUnavailable,
	KindCanceled:              StatusClientClosedRequest,
	KindInternal:              http.StatusInternalServerError,
}

type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"-"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E builds an AppError of the given kind. The HTTP code follows the kind.
func E(kind Kind, op string, err error, message string) *AppError {
	code, ok := kindCodes[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return E(KindInvalidRequest, op, err, message)
}

func InvalidURL(op string, err error, message string) *AppError {
	return E(KindInvalidURL, op, err, message)
}

func TranscriptUnavailable(op string, err error, message string) *AppError {
	return E(KindTranscriptUnavailable, op, err, message)
}

func Network(op string, err error, message string) *AppError {
	return E(KindNetwork, op, err, message)
}

func BackendUnavailable(op string, err error, message string) *AppError {
	return E(KindBackendUnavailable, op, err, message)
}

func BackendTimeout(op string, err error, message string) *AppError {
	return E(KindBackendTimeout, op, err, message)
}

func BackendError(op string, err error, message string) *AppError {
	return E(KindBackendError, op, err, message)
}

func QueueFull(op string) *AppError {
	return E(KindQueueFull, op, nil, "Server is busy, please try again later.")
}

func Canceled(op string, err error) *AppError {
	return E(KindCanceled, op, err, "Request cancelled")
}

func Internal(op string, err error, message string) *AppError {
	return E(KindInternal, op, err, message)
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
