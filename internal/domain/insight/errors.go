package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why an analysis call failed.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindServer  ErrorKind = "server"
	KindDecode  ErrorKind = "decode"
)

var (
	// ErrRequestInFlight is returned when a presenter already has a loading request.
	ErrRequestInFlight = errors.New("insight request already in flight")
	// ErrNotRetryable is returned by Retry when the presenter is not in a retryable failed state.
	ErrNotRetryable = errors.New("insight request is not retryable")
	// ErrPresenterClosed is returned after teardown.
	ErrPresenterClosed = errors.New("insight presenter closed")
)

// Error is the failure taxonomy of the insight client.
type Error struct {
	Kind   ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		if e.Body != "" {
			return fmt.Sprintf("insight server error: status=%d body=%s", e.Status, e.Body)
		}
		return fmt.Sprintf("insight server error: status=%d", e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("insight %s error: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("insight %s error", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindServer:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// NetworkError wraps a transport failure.
func NetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// TimeoutError wraps a deadline expiry.
func TimeoutError(err error) *Error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return &Error{Kind: KindTimeout, Err: err}
}

// ServerError captures a non-2xx response.
func ServerError(status int, body string) *Error {
	return &Error{Kind: KindServer, Status: status, Body: body}
}

// DecodeError wraps a malformed response.
func DecodeError(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

// AsError classifies any error into the taxonomy. Unknown errors count as network failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError(err)
	}
	return NetworkError(err)
}

// Failure is the user-facing part of a failed state. Raw error text is logged, not shown.
type Failure struct {
	Kind      ErrorKind `json:"kind"`
	Status    int       `json:"status,omitempty"`
	Retryable bool      `json:"retryable"`
}

func failureOf(err *Error) *Failure {
	return &Failure{Kind: err.Kind, Status: err.Status, Retryable: err.Retryable()}
}
