package studio

import "errors"

var (
	// ErrNotFound covers both missing sessions and sessions owned by someone else.
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrBusy is returned when a session already has a queued or running job.
	ErrBusy = errors.New("session busy")
)
