package audit

import (
	"context"

	"github.com/google/uuid"
)

// Store persists audit entries. Append joins any transaction bound to ctx via
// pkg/platform/tx so the entry commits or rolls back with the status change
// that caused it.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Entry, error)
}

// OutboxEntry is an audit event queued for Kafka broadcast. Publishing is
// best-effort and decoupled from the transaction that wrote the entry.
type OutboxEntry struct {
	ID      uuid.UUID
	Key     string
	Payload []byte
}

// OutboxStore drains pending broadcast entries.
type OutboxStore interface {
	NextBatch(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}
