package services

import "errors"

var (
	// ErrPostClosed is returned when replying to a thread that is not open.
	ErrPostClosed = errors.New("post is not open for replies")
	// ErrForbidden is returned when the user may not perform the action.
	ErrForbidden = errors.New("permission denied")
	// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
