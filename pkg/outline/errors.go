package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nainya/outlinestore/pkg/store"
)

var (
	// ErrNotFound indicates a target identifier has no record.
	ErrNotFound = store.ErrNotFound

	// ErrInvariantViolation indicates the caller-supplied adjacency does not
	// match the stored pointers, or the edit would orphan or duplicate a reference.
	ErrInvariantViolation = errors.New("outline: invariant violation")

	// ErrInvalidArgument indicates a malformed request, such as an empty identifier.
	ErrInvalidArgument = errors.New("outline: invalid argument")
)

// InvariantError describes a rejected structural edit.
type InvariantError struct {
	Op     string
	ID     string
	Parent string
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("outline: %s %s: %s", e.Op, e.ID, e.Reason)
	}
	return fmt.Sprintf("outline: %s %s (parent %s): %s", e.Op, e.ID, e.Parent, e.Reason)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

func invalidArg(op, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, op, fmt.Sprintf(format, args...))
}

// ErrorKind classifies an operation error for transports and metrics.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindInvariant
	KindInvalidArgument
	KindCanceled
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant_violation"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Classify returns the kind of err. A nil error is KindNone.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, store.ErrInvalidID):
		return KindInvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
