// Package country holds the per-country lending collaborators: identity
// document validation, risk assessment, and the static reference data tying
// each country to its mandated currency and lending limits.
package country

import (
	"strings"

	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	dErrors "loanflow/pkg/domain-errors"
)

// DocumentValidation is the outcome of identity document validation.
type DocumentValidation struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// RiskLevel buckets a risk score for human consumption.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the strategy's verdict on an application.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReject  Recommendation = "REJECT"
	RecommendReview  Recommendation = "REVIEW"
)

// RiskAssessment is the outcome of applying a country's business rules.
// RiskScore is a 0-100 decimal; higher means riskier.
type RiskAssessment struct {
	RiskScore      decimal.Decimal
	RiskLevel      RiskLevel
	RequiresReview bool
	Recommendation Recommendation
	Reasons        []string
}

//go:generate mockgen -source=strategy.go -destination=mocks/mocks.go -package=mocks Strategy

// Strategy validates identity documents and computes risk for one country.
type Strategy interface {
	Country() models.Country
	ValidateIdentityDocument(document string) DocumentValidation
	ApplyBusinessRules(requestedAmount, monthlyIncome decimal.Decimal, banking *models.BankingData, countryData map[string]any) RiskAssessment
}

// RulesConfig carries the numeric thresholds shared by the scoring model.
// Values are business policy, injected at wiring time, never hardcoded in
// strategies.
type RulesConfig struct {
	MinCreditScore     int
	ReviewCreditScore  int
	MaxDebtToIncomePct decimal.Decimal
	HighRiskScore      decimal.Decimal
	MediumRiskScore    decimal.Decimal
	MaxAmountToIncomeX decimal.Decimal
}

// DefaultRulesConfig returns development thresholds. Production deployments
// load these from policy configuration.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		MinCreditScore:     500,
		ReviewCreditScore:  650,
		MaxDebtToIncomePct: decimal.NewFromInt(40),
		HighRiskScore:      decimal.NewFromInt(70),
		MediumRiskScore:    decimal.NewFromInt(40),
		MaxAmountToIncomeX: decimal.NewFromInt(24),
	}
}

// Factory resolves strategies by country code, case-insensitively.
type Factory struct {
	strategies map[models.Country]Strategy
}

// NewFactory registers one strategy per supported country.
func NewFactory(cfg RulesConfig) *Factory {
	f := &Factory{strategies: make(map[models.Country]Strategy)}
	for _, s := range []Strategy{
		NewSpainStrategy(cfg),
		NewMexicoStrategy(cfg),
		NewColombiaStrategy(cfg),
	} {
		f.strategies[s.Country()] = s
	}
	return f
}

// Resolve returns the strategy for a country code. Lookup is
// case-insensitive; unknown codes fail with a validation error.
func (f *Factory) Resolve(code string) (Strategy, error) {
	c := models.Country(strings.ToUpper(strings.TrimSpace(code)))
	s, ok := f.strategies[c]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported country: %s", code)
	}
	return s, nil
}

// Supported lists the registered country codes.
func (f *Factory) Supported() []models.Country {
	out := make([]models.Country, 0, len(f.strategies))
	for c := range f.strategies {
		out = append(out, c)
	}
	return out
}
