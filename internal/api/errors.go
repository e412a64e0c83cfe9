package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	// The session is invalidated so the next call re-authenticates.
	ErrUnauthorized = errors.New("unauthorized, session expired")

	ErrLoginFailed = errors.New("login failed")
)

// UploadError carries the server-provided message for a failed upload.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: status=%d %s", e.Status, e.Message)
}

// EnqueueError is a non-OK response to a generation request.
type EnqueueError struct {
	Status  int
	Message string
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("generation request failed: status=%d %s", e.Status, e.Message)
}

// TransientError is a transport or HTTP level poll failure. Callers treat it
// as "try again next tick", never as a terminal job failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a poll failure safe to skip.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
