package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"loanflow/internal/application/models"
	txcontext "loanflow/pkg/platform/tx"
)

// PostgresStore persists audit entries and mirrors each one into the outbox
// table for Kafka broadcast. Both inserts go through the same executor, so a
// caller transaction covers them atomically with the status update.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	OldStatus     string         `json:"old_status"`
	NewStatus     string         `json:"new_status"`
	Actor         string         `json:"actor"`
	Reason        string         `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	exec := txcontext.Executor(ctx, s.db)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	const insertEntry = `
		INSERT INTO audit_log (id, application_id, old_status, new_status, actor, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := exec.ExecContext(ctx, insertEntry,
		entry.ID,
		entry.ApplicationID,
		string(entry.OldStatus),
		string(entry.NewStatus),
		entry.Actor,
		entry.Reason,
		metadata,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		ID:            entry.ID.String(),
		ApplicationID: entry.ApplicationID.String(),
		OldStatus:     string(entry.OldStatus),
		NewStatus:     string(entry.NewStatus),
		Actor:         entry.Actor,
		Reason:        entry.Reason,
		Metadata:      entry.Metadata,
		Timestamp:     entry.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	const insertOutbox = `
		INSERT INTO audit_outbox (id, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.ExecContext(ctx, insertOutbox,
		uuid.New(),
		entry.ApplicationID,
		payload,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Entry, error) {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		SELECT id, application_id, old_status, new_status, actor, reason, metadata, created_at
		FROM audit_log
		WHERE application_id = $1
		ORDER BY created_at ASC
	`
	rows, err := exec.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry     Entry
			oldStatus string
			newStatus string
			metadata  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ApplicationID, &oldStatus, &newStatus, &entry.Actor, &entry.Reason, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.OldStatus = models.Status(oldStatus)
		entry.NewStatus = models.Status(newStatus)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// NextBatch returns unpublished outbox entries, oldest first. A single
// publisher loop drains the table; MarkPublished is idempotent, so a crash
// between publish and mark at worst re-sends a batch.
func (s *PostgresStore) NextBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const query = `
		SELECT id, aggregate_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox batch: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			entry       OutboxEntry
			aggregateID uuid.UUID
		)
		if err := rows.Scan(&entry.ID, &aggregateID, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.Key = aggregateID.String()
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE audit_outbox SET published_at = NOW() WHERE id = ANY($1)`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
