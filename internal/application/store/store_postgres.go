package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	"loanflow/internal/crypto"
	"loanflow/pkg/platform/sentinel"
	txcontext "loanflow/pkg/platform/tx"
)

// Unique constraint names referenced when classifying insert failures.
const (
	constraintIdempotencyKey = "applications_idempotency_key_uniq"
	constraintActiveDocument = "applications_active_document_uniq"
)

const pgUniqueViolation = "23505"

// PostgresStore persists applications. Sensitive columns (full_name,
// identity_document) are encrypted before they reach the wire and decrypted
// on read, so plaintext only exists inside a single request or job.
type PostgresStore struct {
	db        *sql.DB
	encryptor crypto.Encryptor
}

func NewPostgres(db *sql.DB, encryptor crypto.Encryptor) *PostgresStore {
	return &PostgresStore{db: db, encryptor: encryptor}
}

const applicationColumns = `
	id, country, full_name, identity_document, document_hash,
	requested_amount, currency, monthly_income, status, risk_score,
	banking_data, validation_errors, country_data, idempotency_key,
	created_at, updated_at, deleted_at
`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	exec := txcontext.Executor(ctx, s.db)

	encName, err := s.encryptor.Encrypt(app.FullName)
	if err != nil {
		return fmt.Errorf("encrypt full name: %w", err)
	}
	encDoc, err := s.encryptor.Encrypt(app.IdentityDocument)
	if err != nil {
		return fmt.Errorf("encrypt identity document: %w", err)
	}

	banking, validation, countryData, err := marshalBlobs(app)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO applications (
			id, country, full_name, identity_document, document_hash,
			requested_amount, currency, monthly_income, status, risk_score,
			banking_data, validation_errors, country_data, idempotency_key,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = exec.ExecContext(ctx, query,
		app.ID,
		string(app.Country),
		encName,
		encDoc,
		app.DocumentHash,
		app.RequestedAmount.String(),
		string(app.Currency),
		app.MonthlyIncome.String(),
		string(app.Status),
		nullDecimal(app.RiskScore),
		banking,
		validation,
		countryData,
		nullString(app.IdempotencyKey),
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return classifyInsertError(err)
	}
	return nil
}

// classifyInsertError maps a unique violation to the sentinel the service
// layer acts on. The constraint name tells us which invariant tripped.
func classifyInsertError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgUniqueViolation {
		return fmt.Errorf("insert application: %w", err)
	}
	switch pqErr.Constraint {
	case constraintIdempotencyKey:
		return ErrIdempotencyConflict
	case constraintActiveDocument:
		return sentinel.ErrDuplicateActive
	default:
		return fmt.Errorf("insert application: %w", sentinel.ErrConflict)
	}
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND deleted_at IS NULL`
	return s.queryOne(ctx, query, id)
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE idempotency_key = $1 AND deleted_at IS NULL`
	return s.queryOne(ctx, query, key)
}

// FindActiveForUpdate takes a row-level exclusive lock on the active
// application for (country, documentHash). Two concurrent creators for the
// same pair serialize here: the second blocks until the first commits, then
// observes the inserted row. Must run inside a transaction or the lock is
// released immediately.
func (s *PostgresStore) FindActiveForUpdate(ctx context.Context, country models.Country, documentHash string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
		WHERE country = $1
		  AND document_hash = $2
		  AND status IN ('PENDING', 'VALIDATING', 'UNDER_REVIEW')
		  AND deleted_at IS NULL
		FOR UPDATE`
	return s.queryOne(ctx, query, string(country), documentHash)
}

func (s *PostgresStore) Update(ctx context.Context, app *models.Application) error {
	exec := txcontext.Executor(ctx, s.db)

	banking, validation, countryData, err := marshalBlobs(app)
	if err != nil {
		return err
	}

	const query = `
		UPDATE applications
		SET status = $2,
		    risk_score = $3,
		    banking_data = $4,
		    validation_errors = $5,
		    country_data = $6,
		    updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := exec.ExecContext(ctx, query,
		app.ID,
		string(app.Status),
		nullDecimal(app.RiskScore),
		banking,
		validation,
		countryData,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)

	const query = `UPDATE applications SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := exec.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("soft delete application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete application: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Application, error) {
	exec := txcontext.Executor(ctx, s.db)

	query := `SELECT ` + applicationColumns + ` FROM applications WHERE deleted_at IS NULL`
	args := []any{}
	if filter.Country != "" {
		args = append(args, string(filter.Country))
		query += fmt.Sprintf(" AND country = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := s.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	exec := txcontext.Executor(ctx, s.db)

	stats := models.Stats{
		ByStatus:      make(map[models.Status]int64),
		ByCountry:     make(map[models.Country]int64),
		AverageAmount: decimal.Zero,
	}

	const query = `
		SELECT status, country, COUNT(*), SUM(requested_amount), AVG(risk_score)
		FROM applications
		WHERE deleted_at IS NULL
		GROUP BY status, country
	`
	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("aggregate stats: %w", err)
	}
	defer rows.Close()

	amountSum := decimal.Zero
	riskSum := decimal.Zero
	var riskGroups int64

	for rows.Next() {
		var (
			status, country string
			count           int64
			sumAmount       string
			avgRisk         sql.NullString
		)
		if err := rows.Scan(&status, &country, &count, &sumAmount, &avgRisk); err != nil {
			return stats, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += count
		stats.ByStatus[models.Status(status)] += count
		stats.ByCountry[models.Country(country)] += count

		amount, err := decimal.NewFromString(sumAmount)
		if err != nil {
			return stats, fmt.Errorf("parse amount sum: %w", err)
		}
		amountSum = amountSum.Add(amount)

		if avgRisk.Valid {
			risk, err := decimal.NewFromString(avgRisk.String)
			if err != nil {
				return stats, fmt.Errorf("parse risk average: %w", err)
			}
			riskSum = riskSum.Add(risk.Mul(decimal.NewFromInt(count)))
			riskGroups += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if stats.Total > 0 {
		stats.AverageAmount = amountSum.Div(decimal.NewFromInt(stats.Total)).Round(2)
	}
	if riskGroups > 0 {
		avg := riskSum.Div(decimal.NewFromInt(riskGroups)).Round(2)
		stats.AverageRiskScore = &avg
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*models.Application, error) {
	exec := txcontext.Executor(ctx, s.db)
	row := exec.QueryRowContext(ctx, query, args...)
	app, err := s.scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return app, err
}

func (s *PostgresStore) scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app              models.Application
		country          string
		encName, encDoc  []byte
		amount, income   string
		status           string
		currency         string
		riskScore        sql.NullString
		banking          []byte
		validation       []byte
		countryData      []byte
		idempotencyKey   sql.NullString
		deletedAt        sql.NullTime
	)

	err := row.Scan(
		&app.ID, &country, &encName, &encDoc, &app.DocumentHash,
		&amount, &currency, &income, &status, &riskScore,
		&banking, &validation, &countryData, &idempotencyKey,
		&app.CreatedAt, &app.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Country = models.Country(country)
	app.Currency = models.Currency(currency)
	app.Status = models.Status(status)

	if app.FullName, err = s.encryptor.Decrypt(encName); err != nil {
		return nil, fmt.Errorf("decrypt full name: %w", err)
	}
	if app.IdentityDocument, err = s.encryptor.Decrypt(encDoc); err != nil {
		return nil, fmt.Errorf("decrypt identity document: %w", err)
	}

	if app.RequestedAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse requested amount: %w", err)
	}
	if app.MonthlyIncome, err = decimal.NewFromString(income); err != nil {
		return nil, fmt.Errorf("parse monthly income: %w", err)
	}
	if riskScore.Valid {
		rs, err := decimal.NewFromString(riskScore.String)
		if err != nil {
			return nil, fmt.Errorf("parse risk score: %w", err)
		}
		app.RiskScore = &rs
	}

	if len(banking) > 0 {
		var bd models.BankingData
		if err := json.Unmarshal(banking, &bd); err != nil {
			return nil, fmt.Errorf("unmarshal banking data: %w", err)
		}
		app.BankingData = &bd
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &app.ValidationErrors); err != nil {
			return nil, fmt.Errorf("unmarshal validation errors: %w", err)
		}
	}
	if len(countryData) > 0 {
		if err := json.Unmarshal(countryData, &app.CountryData); err != nil {
			return nil, fmt.Errorf("unmarshal country data: %w", err)
		}
	}
	if idempotencyKey.Valid {
		app.IdempotencyKey = &idempotencyKey.String
	}
	if deletedAt.Valid {
		app.DeletedAt = &deletedAt.Time
	}
	return &app, nil
}

func marshalBlobs(app *models.Application) (banking, validation, countryData []byte, err error) {
	if app.BankingData != nil {
		if banking, err = json.Marshal(app.BankingData); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal banking data: %w", err)
		}
	}
	if validation, err = json.Marshal(app.ValidationErrors); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal validation errors: %w", err)
	}
	if app.CountryData != nil {
		if countryData, err = json.Marshal(app.CountryData); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal country data: %w", err)
		}
	}
	return banking, validation, countryData, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// PostgresTxRunner runs a function inside one database transaction bound to
// the context. Tx-aware stores (applications, audit) join it transparently.
type PostgresTxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db, timeout: defaultTxTimeout}
}

func (r *PostgresTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Nested calls join the enclosing transaction.
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
