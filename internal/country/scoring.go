package country

import (
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
)

var (
	scoreFloor   = decimal.Zero
	scoreCeiling = decimal.NewFromInt(100)
	baseScore    = decimal.NewFromInt(50)
	hundred      = decimal.NewFromInt(100)
)

// assess runs the shared scoring model with country-specific limits. All
// arithmetic is decimal: debt-to-income of 2000 over 5000 is exactly 40, not
// a float approximation.
func assess(cfg RulesConfig, ref ReferenceData, requestedAmount, monthlyIncome decimal.Decimal, banking *models.BankingData) RiskAssessment {
	score := baseScore
	var reasons []string
	requiresReview := false
	hardReject := false

	if requestedAmount.GreaterThan(ref.MaxLoanAmount) {
		hardReject = true
		reasons = append(reasons, "requested amount exceeds country maximum")
	}
	if monthlyIncome.LessThan(ref.MinMonthlyIncome) {
		hardReject = true
		reasons = append(reasons, "monthly income below country minimum")
	}

	if banking == nil || banking.CreditScore == nil {
		requiresReview = true
		reasons = append(reasons, "no credit score available")
	} else {
		switch cs := *banking.CreditScore; {
		case cs < cfg.MinCreditScore:
			score = score.Add(decimal.NewFromInt(30))
			reasons = append(reasons, "credit score below minimum")
		case cs >= cfg.ReviewCreditScore:
			score = score.Sub(decimal.NewFromInt(20))
		default:
			score = score.Add(decimal.NewFromInt(10))
			reasons = append(reasons, "credit score in review band")
			requiresReview = true
		}
	}

	if banking != nil && banking.MonthlyObligations != nil && monthlyIncome.IsPositive() {
		dti := banking.MonthlyObligations.Div(monthlyIncome).Mul(hundred)
		if dti.GreaterThan(cfg.MaxDebtToIncomePct) {
			score = score.Add(decimal.NewFromInt(25))
			reasons = append(reasons, "debt-to-income ratio above limit")
		}
	}

	if banking != nil && banking.HasDefaults != nil && *banking.HasDefaults {
		score = score.Add(decimal.NewFromInt(20))
		reasons = append(reasons, "payment defaults on record")
	}

	if monthlyIncome.IsPositive() &&
		requestedAmount.GreaterThan(monthlyIncome.Mul(cfg.MaxAmountToIncomeX)) {
		score = score.Add(decimal.NewFromInt(15))
		reasons = append(reasons, "requested amount high relative to income")
	}

	if score.LessThan(scoreFloor) {
		score = scoreFloor
	}
	if score.GreaterThan(scoreCeiling) {
		score = scoreCeiling
	}

	level := RiskLow
	switch {
	case score.GreaterThanOrEqual(cfg.HighRiskScore):
		level = RiskHigh
	case score.GreaterThanOrEqual(cfg.MediumRiskScore):
		level = RiskMedium
	}

	recommendation := RecommendApprove
	switch {
	case hardReject || level == RiskHigh:
		recommendation = RecommendReject
	case requiresReview || level == RiskMedium:
		recommendation = RecommendReview
		requiresReview = true
	}

	return RiskAssessment{
		RiskScore:      score,
		RiskLevel:      level,
		RequiresReview: requiresReview,
		Recommendation: recommendation,
		Reasons:        reasons,
	}
}

// DebtToIncome exposes the ratio used by the scoring model for reporting.
// Returns percent with exact decimal division.
func DebtToIncome(monthlyObligations, monthlyIncome decimal.Decimal) decimal.Decimal {
	if !monthlyIncome.IsPositive() {
		return decimal.Zero
	}
	return monthlyObligations.Div(monthlyIncome).Mul(hundred)
}
