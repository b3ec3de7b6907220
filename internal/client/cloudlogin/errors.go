package cloudlogin

import "errors"

var (
	// ErrMisconfigured means no OIDC client id is configured for the cloud.
	ErrMisconfigured = errors.New("OIDC client ID not configured")
	// ErrCancelled means the login window was closed, or the attempt was
	// reset, before the provider answered.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrTimeout means the attempt outlived its global deadline.
	ErrTimeout = errors.New("cloud login timed out")
	// ErrInProgress means another attempt has not returned to idle yet.
	ErrInProgress = errors.New("cloud login already in progress")
)

// AuthError carries the error string of a CLOUD_AUTH_ERROR message.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
