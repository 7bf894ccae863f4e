// Package webhook consumes signed bank-confirmation callbacks and applies
// their banking data to applications exactly once per provider reference.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	"loanflow/internal/application/store"
	dErrors "loanflow/pkg/domain-errors"
	"loanflow/pkg/platform/sentinel"
	"loanflow/pkg/requestcontext"
)

// ApplicationUpdater is the slice of the application service the processor
// needs: load the target and apply the banking merge under the state machine.
type ApplicationUpdater interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Application, error)
	Update(ctx context.Context, id uuid.UUID, upd models.Update) (*models.Application, error)
}

// Payload is the provider's wire format. Pointer fields distinguish "field
// absent" from zero values so the merge never clobbers known data.
type Payload struct {
	ApplicationID      string           `json:"application_id"`
	DocumentVerified   *bool            `json:"document_verified,omitempty"`
	CreditScore        *int             `json:"credit_score,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	MonthlyObligations *decimal.Decimal `json:"monthly_obligations,omitempty"`
	HasDefaults        *bool            `json:"has_defaults,omitempty"`
	ProviderReference  string           `json:"provider_reference"`
	VerifiedAt         *time.Time       `json:"verified_at,omitempty"`
}

// Result reports the outcome of one delivery.
type Result struct {
	EventID          uuid.UUID  `json:"event_id"`
	ApplicationID    uuid.UUID  `json:"application_id"`
	AlreadyProcessed bool       `json:"already_processed"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

type Processor struct {
	secret       []byte
	maxBodyBytes int64
	events       Store
	apps         ApplicationUpdater
	txRunner     store.TxRunner
	logger       *slog.Logger
}

func NewProcessor(
	secret string,
	maxBodyBytes int64,
	events Store,
	apps ApplicationUpdater,
	txRunner store.TxRunner,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		secret:       []byte(secret),
		maxBodyBytes: maxBodyBytes,
		events:       events,
		apps:         apps,
		txRunner:     txRunner,
		logger:       logger,
	}
}

// Process verifies and applies one delivery. Signature and size checks run
// before the body is decoded, so a rejected delivery has no side effects.
// Application merge and PROCESSED marker commit in one transaction; any
// failure in between marks the event FAILED in a separate recovery
// transaction so a delivery never stays RECEIVED.
func (p *Processor) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	if p.maxBodyBytes > 0 && int64(len(body)) > p.maxBodyBytes {
		return Result{}, dErrors.Newf(dErrors.CodePayloadTooLarge,
			"payload exceeds %d bytes", p.maxBodyBytes)
	}
	if err := p.verifySignature(body, signature); err != nil {
		return Result{}, err
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed webhook payload")
	}
	if payload.ProviderReference == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "provider_reference is required")
	}
	applicationID, err := uuid.Parse(payload.ApplicationID)
	if err != nil {
		return Result{}, dErrors.New(dErrors.CodeValidation, "application_id is not a valid UUID")
	}

	event, err := p.resolveEvent(ctx, payload.ProviderReference, applicationID, body)
	if err != nil {
		return Result{}, err
	}
	if event.Status == EventProcessed {
		return Result{
			EventID:          event.ID,
			ApplicationID:    event.ApplicationID,
			AlreadyProcessed: true,
			ProcessedAt:      event.ProcessedAt,
		}, nil
	}

	processedAt := time.Now().UTC()
	err = p.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		ctx = requestcontext.WithActor(ctx, "webhook", "bank confirmation "+payload.ProviderReference)
		if _, err := p.apps.Update(ctx, applicationID, models.Update{
			BankingData: bankingDataFrom(payload),
		}); err != nil {
			return err
		}
		return p.events.MarkProcessed(ctx, event.ID, processedAt)
	})
	if err != nil {
		p.failEvent(ctx, event.ID, err)
		return Result{}, err
	}

	return Result{
		EventID:       event.ID,
		ApplicationID: applicationID,
		ProcessedAt:   &processedAt,
	}, nil
}

func (p *Processor) verifySignature(body []byte, signature string) error {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// resolveEvent deduplicates by provider reference. A PROCESSED event is
// returned for replay, a FAILED event is reused for retry, an unseen
// reference creates a fresh RECEIVED row.
func (p *Processor) resolveEvent(ctx context.Context, key string, applicationID uuid.UUID, body []byte) (*Event, error) {
	existing, err := p.events.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		if existing.Status == EventFailed {
			// A retried delivery may target a different application or carry
			// a corrected payload; the stored record must reflect what is
			// actually applied.
			now := time.Now().UTC()
			if rerr := p.events.ResetForRetry(ctx, existing.ID, applicationID, body, now); rerr != nil {
				return nil, dErrors.Wrap(rerr, dErrors.CodeInternal, "failed to reset webhook event for retry")
			}
			existing.ApplicationID = applicationID
			existing.Payload = body
			existing.Status = EventReceived
			existing.ErrorMessage = nil
			existing.UpdatedAt = now
		}
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "webhook event lookup failed")
	}

	now := time.Now().UTC()
	event := &Event{
		ID:             uuid.New(),
		IdempotencyKey: key,
		ApplicationID:  applicationID,
		Payload:        body,
		Status:         EventReceived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.events.Create(ctx, event); err != nil {
		// Another delivery with the same reference won the insert race.
		if errors.Is(err, sentinel.ErrConflict) {
			if existing, ferr := p.events.FindByIdempotencyKey(ctx, key); ferr == nil {
				return existing, nil
			}
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record webhook event")
	}
	return event, nil
}

// failEvent runs in its own transaction so the FAILED marker survives the
// rollback of the processing attempt.
func (p *Processor) failEvent(ctx context.Context, id uuid.UUID, cause error) {
	// The marker must land even when the attempt died to a cancelled context.
	ctx = context.WithoutCancel(ctx)
	message := cause.Error()
	if err := p.events.MarkFailed(ctx, id, message, time.Now().UTC()); err != nil {
		p.logger.Error("failed to mark webhook event as failed",
			"event_id", id, "error", err, "cause", message)
	}
}

func bankingDataFrom(payload Payload) *models.BankingData {
	return &models.BankingData{
		DocumentVerified:   payload.DocumentVerified,
		CreditScore:        payload.CreditScore,
		TotalDebt:          payload.TotalDebt,
		MonthlyObligations: payload.MonthlyObligations,
		HasDefaults:        payload.HasDefaults,
		ProviderReference:  payload.ProviderReference,
		VerifiedAt:         payload.VerifiedAt,
	}
}
