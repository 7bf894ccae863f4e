package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	txcontext "loanflow/pkg/platform/tx"
)

// PostgresFailedJobStore persists dead-letter records in failed_jobs.
type PostgresFailedJobStore struct {
	db *sql.DB
}

func NewPostgresFailedJobStore(db *sql.DB) *PostgresFailedJobStore {
	return &PostgresFailedJobStore{db: db}
}

func (s *PostgresFailedJobStore) Create(ctx context.Context, failed *FailedJob) error {
	exec := txcontext.Executor(ctx, s.db)

	var metadata []byte
	if failed.Metadata != nil {
		raw, err := json.Marshal(failed.Metadata)
		if err != nil {
			return fmt.Errorf("marshal dead letter metadata: %w", err)
		}
		metadata = raw
	}

	const query = `
		INSERT INTO failed_jobs (
			id, job_id, task_name, args, kwargs,
			retry_count, max_retries, error_message, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := exec.ExecContext(ctx, query,
		failed.ID,
		failed.JobID,
		failed.TaskName,
		failed.Args,
		failed.Kwargs,
		failed.RetryCount,
		failed.MaxRetries,
		failed.ErrorMessage,
		metadata,
		failed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert failed job: %w", err)
	}
	return nil
}

func (s *PostgresFailedJobStore) List(ctx context.Context, limit int) ([]*FailedJob, error) {
	exec := txcontext.Executor(ctx, s.db)

	const query = `
		SELECT id, job_id, task_name, args, kwargs,
		       retry_count, max_retries, error_message, metadata, created_at
		FROM failed_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := exec.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*FailedJob
	for rows.Next() {
		var (
			failed   FailedJob
			metadata []byte
		)
		err := rows.Scan(
			&failed.ID, &failed.JobID, &failed.TaskName, &failed.Args, &failed.Kwargs,
			&failed.RetryCount, &failed.MaxRetries, &failed.ErrorMessage,
			&metadata, &failed.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed job: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &failed.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal dead letter metadata: %w", err)
			}
		}
		out = append(out, &failed)
	}
	return out, rows.Err()
}
