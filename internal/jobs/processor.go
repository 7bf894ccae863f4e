package jobs

import (
	"context"

	"github.com/google/uuid"

	"loanflow/internal/application/models"
	"loanflow/internal/application/service"
	"loanflow/internal/country"
	dErrors "loanflow/pkg/domain-errors"
	strutil "loanflow/pkg/platform/strings"
	"loanflow/pkg/requestcontext"
)

// StrategyResolver resolves the per-country strategy, normally the
// country.Factory.
type StrategyResolver interface {
	Resolve(code string) (country.Strategy, error)
}

// ApplicationProcessor executes the process_application task: move the
// application into VALIDATING, run the country's document validation and
// business rules, then settle it into APPROVED, REJECTED or UNDER_REVIEW
// with the computed risk score attached.
type ApplicationProcessor struct {
	apps      *service.Service
	countries StrategyResolver
}

func NewApplicationProcessor(apps *service.Service, countries StrategyResolver) *ApplicationProcessor {
	return &ApplicationProcessor{apps: apps, countries: countries}
}

const workerActor = "risk-worker"

// Process runs the risk evaluation for one application. Errors are returned
// unwrapped so the worker can classify them for retry.
func (p *ApplicationProcessor) Process(ctx context.Context, applicationID uuid.UUID) error {
	ctx = requestcontext.WithActor(ctx, workerActor, "automatic processing")

	app, err := p.apps.Get(ctx, applicationID)
	if err != nil {
		return err
	}

	strategy, err := p.countries.Resolve(string(app.Country))
	if err != nil {
		return err
	}

	validating := models.StatusValidating
	if app, err = p.apps.Update(ctx, applicationID, models.Update{Status: &validating}); err != nil {
		return err
	}

	validation := strategy.ValidateIdentityDocument(app.IdentityDocument)
	if !validation.IsValid {
		rejected := models.StatusRejected
		errs := strutil.DedupeAndTrim(validation.Errors)
		_, err := p.apps.Update(ctx, applicationID, models.Update{
			Status:           &rejected,
			ValidationErrors: &errs,
		})
		return err
	}

	assessment := strategy.ApplyBusinessRules(
		app.RequestedAmount, app.MonthlyIncome, app.BankingData, app.CountryData)

	status, err := statusFor(assessment)
	if err != nil {
		return err
	}

	score := assessment.RiskScore
	reasons := strutil.DedupeAndTrim(assessment.Reasons)
	_, err = p.apps.Update(ctx, applicationID, models.Update{
		Status:           &status,
		RiskScore:        &score,
		ValidationErrors: &reasons,
	})
	return err
}

func statusFor(assessment country.RiskAssessment) (models.Status, error) {
	if assessment.RequiresReview {
		return models.StatusUnderReview, nil
	}
	switch assessment.Recommendation {
	case country.RecommendApprove:
		return models.StatusApproved, nil
	case country.RecommendReject:
		return models.StatusRejected, nil
	case country.RecommendReview:
		return models.StatusUnderReview, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInternal,
			"unknown recommendation %q", assessment.Recommendation)
	}
}
