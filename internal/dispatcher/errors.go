package dispatcher

import (
	"errors"
	"fmt"
)

// Classification is the Transient/Permanent split a DispatchError carries.
// Transient failures are retried per the executor's retry policy;
// Permanent failures propagate immediately and fail the run.
type Classification int

const (
	Permanent Classification = iota
	Transient
)

func (c Classification) String() string {
	if c == Transient {
		return "Transient"
	}
	return "Permanent"
}

// DispatchError is the error type returned by Dispatch. NodeType and
// Classification let the engine decide whether to retry without string
// matching.
type DispatchError struct {
	NodeType       string
	Classification Classification
	Err            error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch error (%s): %v", e.NodeType, e.Classification, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a DispatchError classified Transient.
func IsTransient(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Classification == Transient
	}
	return false
}

// NewTransient wraps err as a Transient DispatchError for nodeType.
func NewTransient(nodeType string, err error) *DispatchError {
	return &DispatchError{NodeType: nodeType, Classification: Transient, Err: err}
}

// NewPermanent wraps err as a Permanent DispatchError for nodeType.
func NewPermanent(nodeType string, err error) *DispatchError {
	return &DispatchError{NodeType: nodeType, Classification: Permanent, Err: err}
}

// RetryPolicy is an executor-declared default retry policy honoured by
// the engine on a Transient DispatchError.
type RetryPolicy struct {
	MaxRetries      int
	InitialBackoff  int // milliseconds
	BackoffFactor   float64
}

// DefaultRetryPolicy applies when an executor declares none: three
// retries with a backoff factor of 2.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, InitialBackoff: 1000, BackoffFactor: 2}

// RetryAware is implemented by executors that declare a non-default
// retry policy for Transient failures.
type RetryAware interface {
	RetryPolicy() RetryPolicy
}
