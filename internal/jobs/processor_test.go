package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loanflow/internal/application/metrics"
	"loanflow/internal/application/models"
	"loanflow/internal/application/service"
	"loanflow/internal/application/store"
	"loanflow/internal/audit"
	"loanflow/internal/country"
	countrymocks "loanflow/internal/country/mocks"
	"loanflow/internal/crypto"
	"loanflow/internal/platform/logger"
	dErrors "loanflow/pkg/domain-errors"
)

var testMetrics = metrics.New()

type stubResolver struct {
	strategy country.Strategy
	err      error
}

func (r stubResolver) Resolve(string) (country.Strategy, error) {
	return r.strategy, r.err
}

type ApplicationProcessorSuite struct {
	suite.Suite
	ctx  context.Context
	svc  *service.Service
	apps *store.InMemoryStore
}

func TestApplicationProcessorSuite(t *testing.T) {
	suite.Run(t, new(ApplicationProcessorSuite))
}

func (s *ApplicationProcessorSuite) SetupTest() {
	s.ctx = context.Background()
	s.apps = store.NewInMemory()

	hasher, err := crypto.NewDocumentHasher("test-hash-key")
	s.Require().NoError(err)

	s.svc = service.New(
		s.apps,
		store.NewInMemoryTxRunner(),
		audit.NewInMemoryStore(),
		hasher,
		country.NewFactory(country.DefaultRulesConfig()),
		noopScheduler{},
		service.NoopStatsCache{},
		testMetrics,
		logger.NewNop(),
	)
}

type noopScheduler struct{}

func (noopScheduler) EnqueueProcessing(context.Context, uuid.UUID) error { return nil }

func (s *ApplicationProcessorSuite) createApplication(document string) *models.Application {
	app, _, err := s.svc.Create(s.ctx, service.CreateRequest{
		Country:          "ES",
		FullName:         "Maria Garcia Lopez",
		IdentityDocument: document,
		RequestedAmount:  decimal.NewFromInt(10000),
		MonthlyIncome:    decimal.NewFromInt(3000),
	})
	s.Require().NoError(err)
	return app
}

func (s *ApplicationProcessorSuite) TestValidDocumentSettlesViaBusinessRules() {
	app := s.createApplication("12345678Z")
	verified := true
	score := 720
	noDefaults := false
	_, err := s.svc.Update(s.ctx, app.ID, models.Update{
		BankingData: &models.BankingData{
			DocumentVerified: &verified,
			CreditScore:      &score,
			HasDefaults:      &noDefaults,
		},
	})
	s.Require().NoError(err)

	processor := NewApplicationProcessor(s.svc, country.NewFactory(country.DefaultRulesConfig()))
	s.Require().NoError(processor.Process(s.ctx, app.ID))

	got, err := s.svc.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Require().NotNil(got.RiskScore)
	s.True(got.RiskScore.LessThan(decimal.NewFromInt(40)))
}

func (s *ApplicationProcessorSuite) TestInvalidDocumentRejects() {
	app := s.createApplication("12345678A") // wrong control letter

	processor := NewApplicationProcessor(s.svc, country.NewFactory(country.DefaultRulesConfig()))
	s.Require().NoError(processor.Process(s.ctx, app.ID))

	got, err := s.svc.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.NotEmpty(got.ValidationErrors)
}

func (s *ApplicationProcessorSuite) TestReviewRecommendationGoesToUnderReview() {
	app := s.createApplication("12345678Z")

	ctrl := gomock.NewController(s.T())
	strategy := countrymocks.NewMockStrategy(ctrl)
	strategy.EXPECT().ValidateIdentityDocument(gomock.Any()).Return(country.DocumentValidation{IsValid: true})
	strategy.EXPECT().ApplyBusinessRules(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(country.RiskAssessment{
		RiskScore:      decimal.NewFromInt(55),
		RiskLevel:      country.RiskMedium,
		RequiresReview: true,
		Recommendation: country.RecommendReview,
		Reasons:        []string{"manual review required"},
	})

	processor := NewApplicationProcessor(s.svc, stubResolver{strategy: strategy})
	s.Require().NoError(processor.Process(s.ctx, app.ID))

	got, err := s.svc.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, got.Status)
	s.Equal([]string{"manual review required"}, got.ValidationErrors)
	s.True(got.RiskScore.Equal(decimal.NewFromInt(55)))
}

func (s *ApplicationProcessorSuite) TestMissingApplicationIsPermanent() {
	processor := NewApplicationProcessor(s.svc, country.NewFactory(country.DefaultRulesConfig()))

	err := processor.Process(s.ctx, uuid.New())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(FailurePermanent, Classify(err))
}
