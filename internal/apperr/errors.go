// Package apperr defines the error kinds shared by the engine and its callers.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidInput   = errors.New("invalid input")
	ErrMalformed      = errors.New("malformed front matter")
	ErrPartialFailure = errors.New("partial failure")
)
