package jobs

import (
	dErrors "loanflow/pkg/domain-errors"
)

// FailureClass decides whether a failed job is retried.
type FailureClass int

const (
	// FailureTransient covers infrastructure faults worth retrying:
	// connection loss, timeouts, temporarily unavailable dependencies.
	FailureTransient FailureClass = iota
	// FailurePermanent covers business outcomes a retry cannot change:
	// validation rejections, state transition conflicts, missing rows.
	FailurePermanent
)

// Classify maps an error to a retry decision. Unclassified errors are
// treated as transient so a new failure mode gets the retry budget rather
// than an instant dead letter.
func Classify(err error) FailureClass {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation,
		dErrors.CodeBadRequest,
		dErrors.CodeConflict,
		dErrors.CodeNotFound,
		dErrors.CodeInvariantViolation:
		return FailurePermanent
	}
	return FailureTransient
}
