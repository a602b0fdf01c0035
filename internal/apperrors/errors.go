package apperrors

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrRemoteTimeout     = errors.New("remote request timed out")
	ErrRemoteUnreachable = errors.New("remote unreachable")
	ErrPersistence       = errors.New("persistence failure")
)
