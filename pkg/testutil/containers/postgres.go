//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema bootstraps a fresh database. The partial unique index on
// (country, document_hash) is the backstop behind the row-lock duplicate
// check; its name and the idempotency index name are load-bearing because
// the store classifies violations by constraint.
const schema = `
CREATE TABLE IF NOT EXISTS applications (
	id                UUID PRIMARY KEY,
	country           TEXT NOT NULL,
	full_name         BYTEA NOT NULL,
	identity_document BYTEA NOT NULL,
	document_hash     TEXT NOT NULL,
	requested_amount  NUMERIC(18,2) NOT NULL,
	currency          TEXT NOT NULL,
	monthly_income    NUMERIC(18,2) NOT NULL,
	status            TEXT NOT NULL,
	risk_score        NUMERIC(5,2),
	banking_data      JSONB,
	validation_errors JSONB,
	country_data      JSONB,
	idempotency_key   TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	deleted_at        TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS applications_idempotency_key_uniq
	ON applications (idempotency_key)
	WHERE idempotency_key IS NOT NULL AND deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS applications_active_document_uniq
	ON applications (country, document_hash)
	WHERE status IN ('PENDING', 'VALIDATING', 'UNDER_REVIEW') AND deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS applications_created_at_idx
	ON applications (created_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
	id             UUID PRIMARY KEY,
	application_id UUID NOT NULL,
	old_status     TEXT NOT NULL,
	new_status     TEXT NOT NULL,
	actor          TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_application_idx
	ON audit_log (application_id, created_at);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           UUID PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS webhook_events (
	id              UUID PRIMARY KEY,
	idempotency_key TEXT NOT NULL UNIQUE,
	application_id  UUID NOT NULL,
	payload         BYTEA,
	status          TEXT NOT NULL,
	error_message   TEXT,
	processed_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_jobs (
	id            UUID PRIMARY KEY,
	job_id        TEXT NOT NULL,
	task_name     TEXT NOT NULL,
	args          JSONB,
	kwargs        JSONB,
	retry_count   TEXT NOT NULL,
	max_retries   TEXT NOT NULL,
	error_message TEXT NOT NULL,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);
`

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	DSN       string
}

// NewPostgresContainer starts postgres and bootstraps the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("loanflow_test"),
		tcpostgres.WithUsername("loanflow"),
		tcpostgres.WithPassword("loanflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	pc := &PostgresContainer{Container: container, DB: db, DSN: dsn}
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(context.Background())
	})
	return pc
}

// TruncateTables clears all data between tests while keeping the schema.
func (pc *PostgresContainer) TruncateTables(t *testing.T) {
	t.Helper()
	_, err := pc.DB.Exec(`TRUNCATE applications, audit_log, audit_outbox, webhook_events, failed_jobs`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
