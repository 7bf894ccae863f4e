package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	"loanflow/internal/audit"
	"loanflow/internal/crypto"
)

// ApplicationResponse is the external view of an application. The identity
// document is always masked on the way out.
type ApplicationResponse struct {
	ID               uuid.UUID           `json:"id"`
	Country          models.Country      `json:"country"`
	FullName         string              `json:"full_name"`
	IdentityDocument string              `json:"identity_document"`
	RequestedAmount  decimal.Decimal     `json:"requested_amount"`
	Currency         models.Currency     `json:"currency"`
	MonthlyIncome    decimal.Decimal     `json:"monthly_income"`
	Status           models.Status       `json:"status"`
	RiskScore        *decimal.Decimal    `json:"risk_score,omitempty"`
	BankingData      *models.BankingData `json:"banking_data,omitempty"`
	ValidationErrors []string            `json:"validation_errors,omitempty"`
	CountryData      map[string]any      `json:"country_data,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toResponse(app *models.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:               app.ID,
		Country:          app.Country,
		FullName:         app.FullName,
		IdentityDocument: crypto.MaskDocument(app.IdentityDocument),
		RequestedAmount:  app.RequestedAmount,
		Currency:         app.Currency,
		MonthlyIncome:    app.MonthlyIncome,
		Status:           app.Status,
		RiskScore:        app.RiskScore,
		BankingData:      app.BankingData,
		ValidationErrors: app.ValidationErrors,
		CountryData:      app.CountryData,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}
}

func toResponses(apps []*models.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, len(apps))
	for i, app := range apps {
		out[i] = toResponse(app)
	}
	return out
}

// ListResponse wraps a page of applications.
type ListResponse struct {
	Applications []ApplicationResponse `json:"applications"`
	Count        int                   `json:"count"`
}

// AuditEntryResponse is one status-change record.
type AuditEntryResponse struct {
	ID            uuid.UUID     `json:"id"`
	ApplicationID uuid.UUID     `json:"application_id"`
	OldStatus     models.Status `json:"old_status,omitempty"`
	NewStatus     models.Status `json:"new_status"`
	Actor         string        `json:"actor"`
	Reason        string        `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func toAuditResponses(entries []audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:            e.ID,
			ApplicationID: e.ApplicationID,
			OldStatus:     e.OldStatus,
			NewStatus:     e.NewStatus,
			Actor:         e.Actor,
			Reason:        e.Reason,
			Metadata:      e.Metadata,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}
