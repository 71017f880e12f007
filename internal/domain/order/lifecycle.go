package order

import (
	"time"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

// adminTargets are the statuses only the admin may set. Any non-terminal
// order may jump to any of them, pending to completed included.
var adminTargets = map[Status]bool{
	StatusProcessing: true,
	StatusShipping:   true,
	StatusCompleted:  true,
}

// Transition moves o to target on behalf of actor, appending to the status
// history. o is left untouched on error.
//
// Checks run in order: target validity, terminal current state, actor
// rights, then state eligibility. A terminal order therefore always yields
// an InvalidTransitionError, whoever asks.
func Transition(o *Order, target Status, actor auth.Actor, now time.Time) error {
	if !target.Valid() {
		return validation.Errorf("status", "unknown status %q", target)
	}
	if o.Status.Terminal() || target == StatusPending || target == o.Status {
		return &InvalidTransitionError{Current: o.Status, Target: target}
	}

	switch {
	case target == StatusCancelled:
		if !actor.Owns(o.BuyerID) {
			return ErrForbidden
		}
		if o.Status != StatusPending {
			return &InvalidTransitionError{Current: o.Status, Target: target}
		}
	case adminTargets[target]:
		if !actor.IsAdmin() {
			return ErrForbidden
		}
	}

	o.Status = target
	o.History = append(o.History, StatusRecord{Status: target, Timestamp: now})
	return nil
}

// start seeds a new order at pending.
func start(o *Order, now time.Time) {
	o.Status = StatusPending
	o.History = []StatusRecord{{Status: StatusPending, Timestamp: now}}
}
