package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loanflow/pkg/platform/sentinel"
	txcontext "loanflow/pkg/platform/tx"
)

// PostgresStore persists webhook events in the webhook_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, event *Event) error {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		INSERT INTO webhook_events (
			id, idempotency_key, application_id, payload, status,
			error_message, processed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := exec.ExecContext(ctx, query,
		event.ID,
		event.IdempotencyKey,
		event.ApplicationID,
		event.Payload,
		string(event.Status),
		event.ErrorMessage,
		event.ProcessedAt,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*Event, error) {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		SELECT id, idempotency_key, application_id, payload, status,
		       error_message, processed_at, created_at, updated_at
		FROM webhook_events
		WHERE idempotency_key = $1
	`
	var (
		event        Event
		status       string
		errorMessage sql.NullString
		processedAt  sql.NullTime
	)
	err := exec.QueryRowContext(ctx, query, key).Scan(
		&event.ID, &event.IdempotencyKey, &event.ApplicationID, &event.Payload,
		&status, &errorMessage, &processedAt, &event.CreatedAt, &event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find webhook event: %w", err)
	}

	event.Status = EventStatus(status)
	if errorMessage.Valid {
		event.ErrorMessage = &errorMessage.String
	}
	if processedAt.Valid {
		event.ProcessedAt = &processedAt.Time
	}
	return &event, nil
}

func (s *PostgresStore) ResetForRetry(ctx context.Context, id uuid.UUID, applicationID uuid.UUID, payload []byte, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		UPDATE webhook_events
		SET application_id = $2, payload = $3, status = $4, error_message = NULL, updated_at = $5
		WHERE id = $1
	`
	res, err := exec.ExecContext(ctx, query, id, applicationID, payload, string(EventReceived), at)
	if err != nil {
		return fmt.Errorf("reset webhook event for retry: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		UPDATE webhook_events
		SET status = $2, processed_at = $3, error_message = NULL, updated_at = $3
		WHERE id = $1
	`
	res, err := exec.ExecContext(ctx, query, id, string(EventProcessed), at)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		UPDATE webhook_events
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := exec.ExecContext(ctx, query, id, string(EventFailed), message, at)
	if err != nil {
		return fmt.Errorf("mark webhook event failed: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
