package country

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
)

var cedulaPattern = regexp.MustCompile(`^\d{6,10}$`)

// ColombiaStrategy validates cédula de ciudadanía numbers and applies COP
// lending limits.
type ColombiaStrategy struct {
	cfg RulesConfig
	ref ReferenceData
}

func NewColombiaStrategy(cfg RulesConfig) *ColombiaStrategy {
	ref := referenceTable[models.CountryCO]
	return &ColombiaStrategy{cfg: cfg, ref: ref}
}

func (s *ColombiaStrategy) Country() models.Country { return models.CountryCO }

// ValidateIdentityDocument checks the cédula is 6-10 digits.
func (s *ColombiaStrategy) ValidateIdentityDocument(document string) DocumentValidation {
	doc := strings.TrimSpace(document)

	if !cedulaPattern.MatchString(doc) {
		return DocumentValidation{Errors: []string{"cedula must be 6 to 10 digits"}}
	}
	if strings.HasPrefix(doc, "0") {
		return DocumentValidation{Errors: []string{"cedula cannot start with zero"}}
	}
	return DocumentValidation{IsValid: true}
}

func (s *ColombiaStrategy) ApplyBusinessRules(requestedAmount, monthlyIncome decimal.Decimal, banking *models.BankingData, countryData map[string]any) RiskAssessment {
	return assess(s.cfg, s.ref, requestedAmount, monthlyIncome, banking)
}
