// Package statemachine defines the legal status transitions for loan
// applications. It is pure: no storage, no clock, no I/O. Every status write
// in the system funnels through ValidateTransition.
package statemachine

import (
	"errors"
	"fmt"

	"loanflow/internal/application/models"
)

// Base errors. Callers distinguish a transition that is simply not in the
// table from an attempt to leave a terminal state; the HTTP layer maps both
// to 400-class responses with different messages.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTerminalState     = errors.New("application is in a terminal state")
)

// transitions is the full table of allowed successors. Terminal states have
// no entry. No path reaches a terminal outcome from PENDING without passing
// through VALIDATING.
var transitions = map[models.Status][]models.Status{
	models.StatusPending:     {models.StatusValidating, models.StatusCancelled},
	models.StatusValidating:  {models.StatusApproved, models.StatusRejected, models.StatusUnderReview},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected},
}

// terminal states have no outgoing transitions.
var terminal = map[models.Status]bool{
	models.StatusApproved:  true,
	models.StatusRejected:  true,
	models.StatusCancelled: true,
	models.StatusCompleted: true,
}

// ValidateTransition returns nil when target is reachable from current.
// A no-op transition (target == current) is always allowed so idempotent
// updates don't fail.
func ValidateTransition(current, target models.Status) error {
	if current == target {
		return nil
	}
	if terminal[current] {
		return fmt.Errorf("%w: %s accepts no further transitions", ErrTerminalState, current)
	}
	for _, allowed := range transitions[current] {
		if allowed == target {
			return nil
		}
	}
	return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, current, target)
}

// IsFinal reports whether status is terminal.
func IsFinal(status models.Status) bool {
	return terminal[status]
}

// AllowedTransitions returns the successor set for status. Terminal states
// return an empty slice.
func AllowedTransitions(status models.Status) []models.Status {
	allowed := transitions[status]
	out := make([]models.Status, len(allowed))
	copy(out, allowed)
	return out
}

// ActiveStatuses returns every non-terminal status. The repository uses this
// set for the duplicate active application check.
func ActiveStatuses() []models.Status {
	return []models.Status{models.StatusPending, models.StatusValidating, models.StatusUnderReview}
}
