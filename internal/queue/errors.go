package queue

import "errors"

// transientError marks a task failure as retryable, mirroring the
// dispatcher package's Transient/Permanent split (internal/dispatcher/errors.go)
// for the queue's own task handlers.
type transientError struct {
	err error
}

// Transient wraps err so the worker pool retries the task (subject to its
// RetryPolicy) instead of failing it immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func (e *transientError) Error() string { return e.err.Error() + " (transient)" }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err (or anything it wraps) was marked
// Transient by a task handler.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
