package common

import "errors"

var (
	// ErrInvalidEmail is returned when an address fails local validation
	// before any request is made.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrEmptyAPIKey is returned when an empty key is offered for login.
	ErrEmptyAPIKey = errors.New("api key is required")
)
