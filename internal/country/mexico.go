package country

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
)

var curpPattern = regexp.MustCompile(`^[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d$`)

// MexicoStrategy validates CURP documents and applies MXN lending limits.
type MexicoStrategy struct {
	cfg RulesConfig
	ref ReferenceData
}

func NewMexicoStrategy(cfg RulesConfig) *MexicoStrategy {
	ref := referenceTable[models.CountryMX]
	return &MexicoStrategy{cfg: cfg, ref: ref}
}

func (s *MexicoStrategy) Country() models.Country { return models.CountryMX }

// ValidateIdentityDocument checks the 18-character CURP layout.
func (s *MexicoStrategy) ValidateIdentityDocument(document string) DocumentValidation {
	doc := strings.ToUpper(strings.TrimSpace(document))

	if len(doc) != 18 {
		return DocumentValidation{Errors: []string{"CURP must be 18 characters"}}
	}
	if !curpPattern.MatchString(doc) {
		return DocumentValidation{Errors: []string{"CURP format is invalid"}}
	}

	var warnings []string
	if doc != document {
		warnings = append(warnings, "document was normalized to upper case")
	}
	return DocumentValidation{IsValid: true, Warnings: warnings}
}

func (s *MexicoStrategy) ApplyBusinessRules(requestedAmount, monthlyIncome decimal.Decimal, banking *models.BankingData, countryData map[string]any) RiskAssessment {
	out := assess(s.cfg, s.ref, requestedAmount, monthlyIncome, banking)

	// Informal-economy income cannot be verified against payroll records.
	if employment, ok := countryData["employment_type"].(string); ok && employment == "informal" {
		out.RequiresReview = true
		if out.Recommendation == RecommendApprove {
			out.Recommendation = RecommendReview
		}
		out.Reasons = append(out.Reasons, "informal employment requires income verification")
	}
	return out
}
