package country

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
)

// dniControlLetters maps number mod 23 to the DNI control letter.
const dniControlLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var dniPattern = regexp.MustCompile(`^\d{8}[A-Z]$`)

// SpainStrategy validates Spanish DNI documents and applies EUR lending
// limits.
type SpainStrategy struct {
	cfg RulesConfig
	ref ReferenceData
}

func NewSpainStrategy(cfg RulesConfig) *SpainStrategy {
	ref := referenceTable[models.CountryES]
	return &SpainStrategy{cfg: cfg, ref: ref}
}

func (s *SpainStrategy) Country() models.Country { return models.CountryES }

// ValidateIdentityDocument checks DNI format and the mod-23 control letter.
func (s *SpainStrategy) ValidateIdentityDocument(document string) DocumentValidation {
	doc := strings.ToUpper(strings.TrimSpace(document))

	if !dniPattern.MatchString(doc) {
		return DocumentValidation{
			Errors: []string{"DNI must be 8 digits followed by a control letter"},
		}
	}

	number, err := strconv.Atoi(doc[:8])
	if err != nil {
		return DocumentValidation{Errors: []string{"DNI digits are not numeric"}}
	}
	expected := dniControlLetters[number%23]
	if doc[8] != expected {
		return DocumentValidation{Errors: []string{"DNI control letter does not match"}}
	}

	var warnings []string
	if doc != document {
		warnings = append(warnings, "document was normalized to upper case")
	}
	return DocumentValidation{IsValid: true, Warnings: warnings}
}

func (s *SpainStrategy) ApplyBusinessRules(requestedAmount, monthlyIncome decimal.Decimal, banking *models.BankingData, countryData map[string]any) RiskAssessment {
	out := assess(s.cfg, s.ref, requestedAmount, monthlyIncome, banking)

	// Self-employed applicants carry extra income volatility.
	if employment, ok := countryData["employment_type"].(string); ok && employment == "autonomo" {
		out.RequiresReview = true
		if out.Recommendation == RecommendApprove {
			out.Recommendation = RecommendReview
		}
		out.Reasons = append(out.Reasons, "self-employed applicant requires manual review")
	}
	return out
}
