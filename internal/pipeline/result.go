package pipeline

import (
	"fmt"
	"time"

	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
)

// Status is the terminal state of one item.
type Status int

const (
	// StatusSucceeded means inference succeeded and the side effect (if any) was applied.
	StatusSucceeded Status = iota
	// StatusFailed means inference or the side effect failed.
	StatusFailed
	// StatusCanceled means the run was stopped before the item finished.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the single record produced for every dequeued item.
type Result[P any] struct {
	Item filehandler.WorkItem
	// Outcome classifies the last inference attempt. It is chat.Success
	// when inference worked even if the side effect then failed.
	Outcome  chat.OutcomeKind
	Status   Status
	Attempts int
	Payload  P
	Err      error
	// SideEffectApplied is false in dry-run and on any failure.
	SideEffectApplied bool
	Duration          time.Duration
}

// Succeeded reports whether the item counts as a success.
func (r Result[P]) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// SideEffectError wraps a failure to move or rewrite a file after a
// successful inference. It is recorded, never retried.
type SideEffectError struct {
	Path string
	Err  error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side effect failed for %s: %v", e.Path, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}
