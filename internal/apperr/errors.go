// Package apperr defines the sentinel errors shared across canvasd.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("closed")
	ErrInvalid       = errors.New("invalid request")
)
