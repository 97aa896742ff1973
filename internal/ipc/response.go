package ipc

import (
	"errors"

	"MediDesk/internal/backend"
	"MediDesk/internal/schema"
)

// Kind is a stable machine-readable error category carried alongside the
// human-readable message, so the UI can branch without parsing strings.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindNoBackendToken  Kind = "no_backend_token"
	KindBackend         Kind = "backend"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Response is the uniform shape every dispatch returns across the process
// boundary. The boundary never raises: failures are responses too.
type Response struct {
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

// OK wraps a handler result in a success response.
func OK(result any) *Response {
	return &Response{Success: true, Result: result}
}

// Fail builds a failure response from an error, classifying it into a Kind.
func Fail(err error) *Response {
	return &Response{Success: false, Error: err.Error(), Kind: classify(err)}
}

func classify(err error) Kind {
	var ve *schema.ValidationError
	var be *backend.BackendError
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, backend.ErrNoBackendToken):
		return KindNoBackendToken
	case errors.As(err, &be):
		return KindBackend
	case errors.Is(err, ErrUnknownChannel):
		return KindNotFound
	default:
		return KindInternal
	}
}
