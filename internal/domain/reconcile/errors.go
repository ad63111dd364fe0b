package reconcile

import (
	"errors"
	"fmt"
)

// ErrItemNotFound is returned when a cursor update targets a linked item
// that does not exist locally.
var ErrItemNotFound = errors.New("linked item not found")

// Error wraps a store failure that occurred during reconciliation.
// Op identifies the failing operation (e.g. "upsert_transactions").
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
