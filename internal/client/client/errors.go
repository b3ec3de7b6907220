package client

import (
	"errors"
)

var (
	// ErrUnavailable means the request never got a response: DNS failure,
	// refused connection, reset, TLS failure.
	ErrUnavailable = errors.New("server unavailable")
	// ErrTimeout means the operation deadline expired before a response.
	ErrTimeout = errors.New("request timed out")
	// ErrUnauthorized means the server rejected the credential (HTTP 401 or
	// an auth-rejection message). It is fatal for the session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict means the e-mail is already registered.
	ErrConflict = errors.New("already registered")
	// ErrServerRejected covers every other non-2xx response.
	ErrServerRejected = errors.New("server rejected request")
)

// APIError is the single error value returned by every HTTPClient
// operation. Error() is the human-readable message meant for display;
// errors.Is matches Kind (one of the sentinels above) and the underlying
// transport error, if any.
type APIError struct {
	Op      string
	Status  int
	Message string
	Kind    error
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
