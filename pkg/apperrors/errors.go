package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSyncInProgress   = errors.New("sync already running")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
