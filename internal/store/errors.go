package store

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing document or sidecar. It is the only store
// error transitions are allowed to convert into a business error; everything
// else propagates and aborts the cycle.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.ID)
}

// ConflictError reports an optimistic-concurrency failure: the stored
// revision no longer matches the revision the caller read.
type ConflictError struct {
	ID  string
	Rev string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %s (have %s)", e.ID, e.Rev)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
