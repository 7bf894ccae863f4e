package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a loan application. Transitions between
// statuses are governed by the statemachine package; nothing else mutates
// Status.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusValidating  Status = "VALIDATING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusCancelled   Status = "CANCELLED"
	StatusCompleted   Status = "COMPLETED"
)

// Country is an ISO 3166-1 alpha-2 code from the supported set.
type Country string

const (
	CountryES Country = "ES"
	CountryMX Country = "MX"
	CountryCO Country = "CO"
)

// Currency is an ISO 4217 code. Each supported country mandates exactly one.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyMXN Currency = "MXN"
	CurrencyCOP Currency = "COP"
)

// BankingData is the structured blob merged from provider webhooks. Pointer
// fields distinguish "not reported" from zero values so webhook merges never
// clobber known data with absent fields.
type BankingData struct {
	DocumentVerified   *bool            `json:"document_verified,omitempty"`
	CreditScore        *int             `json:"credit_score,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	MonthlyObligations *decimal.Decimal `json:"monthly_obligations,omitempty"`
	HasDefaults        *bool            `json:"has_defaults,omitempty"`
	ProviderReference  string           `json:"provider_reference,omitempty"`
	VerifiedAt         *time.Time       `json:"verified_at,omitempty"`
}

// Merge applies incoming values over b, field by field. Provided fields win;
// absent (nil) fields leave the existing value untouched.
func (b BankingData) Merge(incoming BankingData) BankingData {
	out := b
	if incoming.DocumentVerified != nil {
		out.DocumentVerified = incoming.DocumentVerified
	}
	if incoming.CreditScore != nil {
		out.CreditScore = incoming.CreditScore
	}
	if incoming.TotalDebt != nil {
		out.TotalDebt = incoming.TotalDebt
	}
	if incoming.MonthlyObligations != nil {
		out.MonthlyObligations = incoming.MonthlyObligations
	}
	if incoming.HasDefaults != nil {
		out.HasDefaults = incoming.HasDefaults
	}
	if incoming.ProviderReference != "" {
		out.ProviderReference = incoming.ProviderReference
	}
	if incoming.VerifiedAt != nil {
		out.VerifiedAt = incoming.VerifiedAt
	}
	return out
}

// Application is the central entity. Sensitive fields are stored encrypted;
// FullName and IdentityDocument here hold plaintext only inside a single
// request or job, decrypted at the store boundary. DocumentHash is the
// deterministic digest used for duplicate detection and row locking.
type Application struct {
	ID               uuid.UUID
	Country          Country
	FullName         string
	IdentityDocument string
	DocumentHash     string
	RequestedAmount  decimal.Decimal
	Currency         Currency
	MonthlyIncome    decimal.Decimal
	Status           Status
	RiskScore        *decimal.Decimal
	BankingData      *BankingData
	ValidationErrors []string
	CountryData      map[string]any
	IdempotencyKey   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// Deleted reports whether the application has been soft-deleted.
func (a *Application) Deleted() bool {
	return a.DeletedAt != nil
}

// Update is a partial mutation applied by the application service. Nil fields
// are left unchanged; setting Status triggers state machine validation.
type Update struct {
	Status           *Status
	RiskScore        *decimal.Decimal
	BankingData      *BankingData
	ValidationErrors *[]string
	CountryData      map[string]any
}

// ListFilter narrows List queries. Zero values mean "no filter".
type ListFilter struct {
	Country Country
	Status  Status
	Limit   int
	Offset  int
}

// Stats aggregates read-side counters for dashboards.
type Stats struct {
	Total            int64             `json:"total"`
	ByStatus         map[Status]int64  `json:"by_status"`
	ByCountry        map[Country]int64 `json:"by_country"`
	AverageAmount    decimal.Decimal   `json:"average_amount"`
	AverageRiskScore *decimal.Decimal  `json:"average_risk_score,omitempty"`
}
