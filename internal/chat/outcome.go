package chat

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies the result of one inference attempt.
type OutcomeKind int

const (
	// Success means the endpoint answered with usable text.
	Success OutcomeKind = iota
	// Retryable means a later attempt may succeed (network, 5xx, malformed output).
	Retryable
	// Fatal means reattempting cannot help (4xx, unreadable input).
	Fatal
)

// String returns the lower-case name used in logs and reports.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FailureError describes a failed inference attempt.
type FailureError struct {
	Kind       OutcomeKind
	StatusCode int // 0 when no HTTP response was received
	Reason     string
	Err        error
}

func (e *FailureError) Error() string {
	msg := e.Kind.String() + ": " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// RetryableFailure builds a Retryable FailureError.
func RetryableFailure(reason string, err error) *FailureError {
	return &FailureError{Kind: Retryable, Reason: reason, Err: err}
}

// FatalFailure builds a Fatal FailureError.
func FatalFailure(reason string, err error) *FailureError {
	return &FailureError{Kind: Fatal, Reason: reason, Err: err}
}

// KindOf maps an error to its outcome: nil is Success, a FailureError keeps
// its kind, anything else is Fatal.
func KindOf(err error) OutcomeKind {
	if err == nil {
		return Success
	}
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Fatal
}

// IsRetryable reports whether err is a Retryable FailureError.
func IsRetryable(err error) bool {
	return KindOf(err) == Retryable
}
