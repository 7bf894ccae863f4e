package handler

import (
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	"loanflow/internal/application/service"
	dErrors "loanflow/pkg/domain-errors"
)

// CreateApplicationRequest is the wire format for POST /applications.
// Amounts travel as JSON strings or numbers; shopspring decimal accepts both
// without losing precision.
type CreateApplicationRequest struct {
	Country          string           `json:"country"`
	FullName         string           `json:"full_name"`
	IdentityDocument string           `json:"identity_document"`
	RequestedAmount  decimal.Decimal  `json:"requested_amount"`
	MonthlyIncome    decimal.Decimal  `json:"monthly_income"`
	Currency         string           `json:"currency,omitempty"`
	CountryData      map[string]any   `json:"country_data,omitempty"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
}

func (r CreateApplicationRequest) toService() service.CreateRequest {
	return service.CreateRequest{
		Country:          r.Country,
		FullName:         r.FullName,
		IdentityDocument: r.IdentityDocument,
		RequestedAmount:  r.RequestedAmount,
		MonthlyIncome:    r.MonthlyIncome,
		Currency:         r.Currency,
		CountryData:      r.CountryData,
		IdempotencyKey:   r.IdempotencyKey,
	}
}

// UpdateApplicationRequest is the wire format for PATCH /applications/{id}.
// Absent fields are left unchanged.
type UpdateApplicationRequest struct {
	Status           *string             `json:"status,omitempty"`
	RiskScore        *decimal.Decimal    `json:"risk_score,omitempty"`
	BankingData      *models.BankingData `json:"banking_data,omitempty"`
	ValidationErrors *[]string           `json:"validation_errors,omitempty"`
	CountryData      map[string]any      `json:"country_data,omitempty"`
	Reason           string              `json:"reason,omitempty"`
}

func (r UpdateApplicationRequest) toModel() (models.Update, error) {
	upd := models.Update{
		RiskScore:        r.RiskScore,
		BankingData:      r.BankingData,
		ValidationErrors: r.ValidationErrors,
		CountryData:      r.CountryData,
	}
	if r.Status != nil {
		status := models.Status(*r.Status)
		switch status {
		case models.StatusPending, models.StatusValidating, models.StatusUnderReview,
			models.StatusApproved, models.StatusRejected, models.StatusCancelled,
			models.StatusCompleted:
			upd.Status = &status
		default:
			return models.Update{}, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", *r.Status)
		}
	}
	return upd, nil
}
