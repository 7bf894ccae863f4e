// Package service orchestrates the loan application lifecycle: creation with
// idempotency and duplicate locking, state-machine-guarded updates with
// transactional audit, soft deletion, listing and statistics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanflow/internal/application/metrics"
	"loanflow/internal/application/models"
	"loanflow/internal/application/statemachine"
	"loanflow/internal/application/store"
	"loanflow/internal/audit"
	"loanflow/internal/country"
	"loanflow/internal/crypto"
	dErrors "loanflow/pkg/domain-errors"
	"loanflow/pkg/platform/sentinel"
	"loanflow/pkg/requestcontext"
)

// Scheduler enqueues background processing for a freshly created application.
type Scheduler interface {
	EnqueueProcessing(ctx context.Context, applicationID uuid.UUID) error
}

// CreateRequest carries the client-supplied fields for a new application.
type CreateRequest struct {
	Country          string
	FullName         string
	IdentityDocument string
	RequestedAmount  decimal.Decimal
	MonthlyIncome    decimal.Decimal
	Currency         string
	CountryData      map[string]any
	IdempotencyKey   string
}

type Service struct {
	store     store.Store
	txRunner  store.TxRunner
	auditLog  audit.Store
	hasher    *crypto.DocumentHasher
	countries *country.Factory
	scheduler Scheduler
	cache     StatsCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(
	st store.Store,
	txRunner store.TxRunner,
	auditLog audit.Store,
	hasher *crypto.DocumentHasher,
	countries *country.Factory,
	scheduler Scheduler,
	cache StatsCache,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     st,
		txRunner:  txRunner,
		auditLog:  auditLog,
		hasher:    hasher,
		countries: countries,
		scheduler: scheduler,
		cache:     cache,
		metrics:   m,
		logger:    logger,
	}
}

// Create registers a new application in PENDING. The duplicate check and the
// insert run inside one transaction holding a row lock on any active
// application for the same (country, document), so concurrent creators for
// the same pair serialize and exactly one wins. The returned bool reports
// whether a new row was created; false means an idempotent replay.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Application, bool, error) {
	start := time.Now()
	defer s.metrics.ObserveCreate(start)

	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	req.IdentityDocument = strings.ToUpper(strings.TrimSpace(req.IdentityDocument))
	req.FullName = strings.TrimSpace(req.FullName)

	if _, err := s.countries.Resolve(req.Country); err != nil {
		return nil, false, err
	}
	countryCode := models.Country(req.Country)

	if err := validateCreateRequest(req); err != nil {
		return nil, false, err
	}

	currency, err := resolveCurrency(countryCode, req.Currency)
	if err != nil {
		return nil, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			s.metrics.IncrementIdempotentReplay()
			return existing, false, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency lookup failed")
		}
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:               uuid.New(),
		Country:          countryCode,
		FullName:         req.FullName,
		IdentityDocument: req.IdentityDocument,
		DocumentHash:     s.hasher.Hash(req.IdentityDocument),
		RequestedAmount:  req.RequestedAmount,
		Currency:         currency,
		MonthlyIncome:    req.MonthlyIncome,
		Status:           models.StatusPending,
		CountryData:      req.CountryData,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		app.IdempotencyKey = &key
	}

	err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.store.FindActiveForUpdate(ctx, app.Country, app.DocumentHash)
		switch {
		case err == nil:
			return s.duplicateError(app)
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "duplicate check failed")
		}

		if err := s.store.Create(ctx, app); err != nil {
			return s.classifyCreateError(err, app)
		}

		return s.auditLog.Append(ctx, audit.Entry{
			ID:            uuid.New(),
			ApplicationID: app.ID,
			OldStatus:     "",
			NewStatus:     models.StatusPending,
			Actor:         requestcontext.Actor(ctx),
			Reason:        "application created",
			Metadata: map[string]any{
				"country":          string(app.Country),
				"requested_amount": app.RequestedAmount.String(),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		// The insert raced another creator to the idempotency constraint.
		// The original row exists, so answer with it.
		if errors.Is(err, store.ErrIdempotencyConflict) && req.IdempotencyKey != "" {
			existing, ferr := s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr == nil {
				s.metrics.IncrementIdempotentReplay()
				return existing, false, nil
			}
		}
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.IncrementDuplicateRejected(string(app.Country))
		}
		return nil, false, err
	}

	s.metrics.IncrementCreated(string(app.Country))
	s.metrics.IncrementTransition("", string(models.StatusPending))

	if err := s.scheduler.EnqueueProcessing(ctx, app.ID); err != nil {
		s.logger.Error("failed to enqueue processing job",
			"application_id", app.ID, "error", err)
	}
	s.invalidateStats(ctx)

	return app, true, nil
}

func validateCreateRequest(req CreateRequest) error {
	if req.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if req.IdentityDocument == "" {
		return dErrors.New(dErrors.CodeValidation, "identity document is required")
	}
	if !req.RequestedAmount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "requested amount must be positive")
	}
	if req.MonthlyIncome.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "monthly income cannot be negative")
	}
	return nil
}

// resolveCurrency infers the mandated currency when absent and rejects any
// supplied currency that does not match it.
func resolveCurrency(c models.Country, supplied string) (models.Currency, error) {
	mandated, err := country.MandatedCurrency(c)
	if err != nil {
		return "", err
	}
	if supplied == "" {
		return mandated, nil
	}
	got := models.Currency(strings.ToUpper(strings.TrimSpace(supplied)))
	if got != mandated {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"currency %s does not match %s mandated currency %s", got, c, mandated)
	}
	return mandated, nil
}

func (s *Service) duplicateError(app *models.Application) error {
	return dErrors.Newf(dErrors.CodeConflict,
		"active application already exists for country %s and document %s",
		app.Country, crypto.MaskDocument(app.IdentityDocument))
}

func (s *Service) classifyCreateError(err error, app *models.Application) error {
	switch {
	case errors.Is(err, store.ErrIdempotencyConflict):
		return err
	case errors.Is(err, sentinel.ErrDuplicateActive):
		return s.duplicateError(app)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "application violates a data constraint")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}
}

// Get returns a non-deleted application by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// Update applies a partial mutation. A requested status change is validated
// against the state machine and, when accepted, the audit entry commits in
// the same transaction as the row update. Actor and reason come from the
// request context; absent values default to "system".
func (s *Service) Update(ctx context.Context, id uuid.UUID, upd models.Update) (*models.Application, error) {
	var updated *models.Application

	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.store.FindByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
		}

		oldStatus := app.Status
		priorRisk := app.RiskScore

		if upd.Status != nil && *upd.Status != app.Status {
			if err := statemachine.ValidateTransition(app.Status, *upd.Status); err != nil {
				return translateTransitionError(err)
			}
			app.Status = *upd.Status
		}
		if upd.RiskScore != nil {
			rs := *upd.RiskScore
			app.RiskScore = &rs
		}
		if upd.BankingData != nil {
			if app.BankingData == nil {
				merged := upd.BankingData.Merge(models.BankingData{})
				app.BankingData = &merged
			} else {
				merged := app.BankingData.Merge(*upd.BankingData)
				app.BankingData = &merged
			}
		}
		if upd.ValidationErrors != nil {
			app.ValidationErrors = append([]string(nil), (*upd.ValidationErrors)...)
		}
		for k, v := range upd.CountryData {
			if app.CountryData == nil {
				app.CountryData = make(map[string]any)
			}
			app.CountryData[k] = v
		}
		app.UpdatedAt = time.Now().UTC()

		if err := s.store.Update(ctx, app); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "application not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update application")
		}

		if app.Status != oldStatus {
			entry := audit.Entry{
				ID:            uuid.New(),
				ApplicationID: app.ID,
				OldStatus:     oldStatus,
				NewStatus:     app.Status,
				Actor:         requestcontext.Actor(ctx),
				Reason:        requestcontext.Reason(ctx),
				Metadata:      transitionMetadata(priorRisk, app.RiskScore),
				CreatedAt:     app.UpdatedAt,
			}
			if err := s.auditLog.Append(ctx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
			}
			s.metrics.IncrementTransition(string(oldStatus), string(app.Status))
		}

		updated = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	return updated, nil
}

func translateTransitionError(err error) error {
	switch {
	case errors.Is(err, statemachine.ErrTerminalState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "application is in a terminal state")
	case errors.Is(err, statemachine.ErrInvalidTransition):
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid state transition")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "transition validation failed")
	}
}

func transitionMetadata(prior, current *decimal.Decimal) map[string]any {
	md := make(map[string]any, 2)
	if prior != nil {
		md["prior_risk_score"] = prior.String()
	}
	if current != nil {
		md["new_risk_score"] = current.String()
	}
	return md
}

// Delete soft-deletes the application. The row survives for audit history;
// reads stop returning it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()

	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.store.FindByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
		}

		if err := s.store.SoftDelete(ctx, id, now); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "application not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete application")
		}

		return s.auditLog.Append(ctx, audit.Entry{
			ID:            uuid.New(),
			ApplicationID: id,
			OldStatus:     app.Status,
			NewStatus:     app.Status,
			Actor:         requestcontext.Actor(ctx),
			Reason:        requestcontext.Reason(ctx),
			Metadata:      map[string]any{"deleted": true},
			CreatedAt:     now,
		})
	})
	if err != nil {
		return err
	}

	s.invalidateStats(ctx)
	return nil
}

// List returns non-deleted applications, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Application, error) {
	apps, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// Stats serves the aggregate counters, reading through the cache. Cache
// failures degrade to the database silently.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	cached, err := s.cache.Get(ctx)
	if err == nil {
		s.metrics.StatsCacheHits.Inc()
		return cached, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.Warn("stats cache read failed", "error", err)
	}
	s.metrics.StatsCacheMisses.Inc()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate statistics")
	}
	if err := s.cache.Set(ctx, stats); err != nil {
		s.logger.Warn("stats cache write failed", "error", err)
	}
	return stats, nil
}

// AuditTrail returns the status-change history of an application.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]audit.Entry, error) {
	entries, err := s.auditLog.ListByApplication(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return entries, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", "error", err)
	}
}
