package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write collided with an existing row (unique constraint)
// - ErrDuplicateActive: an active application already holds the (country, document) slot
// - ErrAlreadyProcessed: webhook event with this idempotency key already applied
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrLockHeld: distributed lock is owned by another worker
// - ErrUnavailable: service or resource temporarily unavailable (retryable)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrDuplicateActive  = errors.New("duplicate active application")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrInvalidState     = errors.New("invalid state")
	ErrLockHeld         = errors.New("lock held")
	ErrUnavailable      = errors.New("unavailable")
)
