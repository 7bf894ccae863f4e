// Package store persists loan applications. Implementations must honor the
// locking contract documented on Store.FindActiveForUpdate: the duplicate
// check and the subsequent insert are only safe when executed inside one
// transaction that holds an exclusive lock on the matching rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"loanflow/internal/application/models"
)

// ErrIdempotencyConflict reports an insert that collided with the unique
// index on the client idempotency key. The service re-fetches and returns the
// existing row instead of failing the request.
var ErrIdempotencyConflict = errors.New("idempotency key conflict")

// Store is the persistence port for applications.
//
// Errors use pkg/platform/sentinel: ErrNotFound for missing rows,
// ErrDuplicateActive for a collision on the active (country, document_hash)
// slot, ErrConflict for any other integrity violation.
type Store interface {
	// Create inserts a new application row.
	Create(ctx context.Context, app *models.Application) error

	// FindByID returns a non-deleted application.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error)

	// FindByIdempotencyKey returns the non-deleted application created with
	// the given client idempotency key.
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Application, error)

	// FindActiveForUpdate locks and returns the active (non-terminal,
	// non-deleted) application for (country, documentHash), or ErrNotFound.
	// Callers MUST invoke it inside a transaction (TxRunner.RunInTx); the
	// lock is held until that transaction commits so a concurrent creator
	// for the same pair blocks until this caller's insert is visible.
	FindActiveForUpdate(ctx context.Context, country models.Country, documentHash string) (*models.Application, error)

	// Update rewrites the mutable columns of an existing application.
	Update(ctx context.Context, app *models.Application) error

	// SoftDelete marks the application deleted without removing the row.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error

	// List returns non-deleted applications matching the filter, newest
	// first.
	List(ctx context.Context, filter models.ListFilter) ([]*models.Application, error)

	// Stats aggregates counts and averages over non-deleted applications.
	Stats(ctx context.Context) (models.Stats, error)
}

// TxRunner executes fn within one storage transaction. The transaction is
// bound to the context handed to fn; tx-aware stores join it automatically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
