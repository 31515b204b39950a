package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a failed bulk query: review queue load or invoice
	// anchor scan. The operation aborts with no partial state committed.
	ErrFetch = errors.New("fetch failed")
	// ErrConcurrentModification marks a conditional update whose
	// precondition no longer held: another session already advanced the
	// record. Callers retry or refresh; local state stays unchanged.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrStaleTarget marks a classify call for a document other than the
	// one at the cursor. Rejected before any store call.
	ErrStaleTarget = errors.New("stale target")
	// ErrInvalidArgument marks a programming error: e.g. stage resolution
	// for an unfinalized classification.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyQueue is the distinguished result for reading from a queue
	// with zero entries. Not a failure.
	ErrEmptyQueue = errors.New("empty queue")

	ErrDocumentNotFound = errors.New("document not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

func errUnknownLabel(raw string) error {
	return fmt.Errorf("unknown classification label %q", raw)
}
