package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by repositories when no order matches.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicateNumber is returned when an order number is already taken.
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// InvalidTransitionError reports a status change the current state does not
// allow. Current is included so callers can reconcile.
type InvalidTransitionError struct {
	Current Status
	Target  Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.Current, e.Target)
}
