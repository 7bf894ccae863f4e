package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	appmetrics "loanflow/internal/application/metrics"
	"loanflow/internal/application/models"
	"loanflow/internal/application/service"
	"loanflow/internal/application/store"
	"loanflow/internal/audit"
	"loanflow/internal/country"
	"loanflow/internal/crypto"
	"loanflow/internal/platform/logger"
	dErrors "loanflow/pkg/domain-errors"
)

const testSecret = "webhook-secret"

var testMetrics = appmetrics.New()

type noopScheduler struct{}

func (noopScheduler) EnqueueProcessing(context.Context, uuid.UUID) error { return nil }

type ProcessorSuite struct {
	suite.Suite
	ctx       context.Context
	events    *InMemoryStore
	apps      *store.InMemoryStore
	svc       *service.Service
	processor *Processor
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = NewInMemoryStore()
	s.apps = store.NewInMemory()

	hasher, err := crypto.NewDocumentHasher("test-hash-key")
	s.Require().NoError(err)

	txRunner := store.NewInMemoryTxRunner()
	s.svc = service.New(
		s.apps,
		txRunner,
		audit.NewInMemoryStore(),
		hasher,
		country.NewFactory(country.DefaultRulesConfig()),
		noopScheduler{},
		service.NoopStatsCache{},
		testMetrics,
		logger.NewNop(),
	)
	s.processor = NewProcessor(testSecret, 64*1024, s.events, s.svc, txRunner, logger.NewNop())
}

func (s *ProcessorSuite) createApplication() *models.Application {
	app, _, err := s.svc.Create(s.ctx, service.CreateRequest{
		Country:          "ES",
		FullName:         "Maria Garcia Lopez",
		IdentityDocument: "12345678Z",
		RequestedAmount:  decimal.NewFromInt(10000),
		MonthlyIncome:    decimal.NewFromInt(3000),
	})
	s.Require().NoError(err)
	return app
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func payloadFor(appID uuid.UUID, reference string, creditScore int) []byte {
	verified := true
	body, _ := json.Marshal(Payload{
		ApplicationID:     appID.String(),
		DocumentVerified:  &verified,
		CreditScore:       &creditScore,
		ProviderReference: reference,
	})
	return body
}

// ============================================================
// Signature and size guards
// ============================================================

func (s *ProcessorSuite) TestGuards() {
	app := s.createApplication()

	s.Run("rejects a bad signature with no side effects", func() {
		body := payloadFor(app.ID, "ref-sig", 700)
		_, err := s.processor.Process(s.ctx, body, "deadbeef")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, lookupErr := s.events.FindByIdempotencyKey(s.ctx, "ref-sig")
		s.Error(lookupErr)
	})

	s.Run("rejects an oversized payload before decoding", func() {
		big := make([]byte, 65*1024)
		_, err := s.processor.Process(s.ctx, big, sign(big))
		s.True(dErrors.HasCode(err, dErrors.CodePayloadTooLarge))
	})

	s.Run("requires provider_reference", func() {
		body := payloadFor(app.ID, "", 700)
		_, err := s.processor.Process(s.ctx, body, sign(body))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a malformed body", func() {
		body := []byte("{not json")
		_, err := s.processor.Process(s.ctx, body, sign(body))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// ============================================================
// Idempotent processing
// ============================================================

func (s *ProcessorSuite) TestIdempotentProcessing() {
	app := s.createApplication()

	body := payloadFor(app.ID, "ref-1", 700)
	first, err := s.processor.Process(s.ctx, body, sign(body))
	s.Require().NoError(err)
	s.False(first.AlreadyProcessed)
	s.Require().NotNil(first.ProcessedAt)

	s.Run("first delivery applies the banking data", func() {
		got, err := s.svc.Get(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().NotNil(got.BankingData)
		s.Equal(700, *got.BankingData.CreditScore)
		s.Equal("ref-1", got.BankingData.ProviderReference)
	})

	s.Run("replay with different values reports already_processed and changes nothing", func() {
		replayBody := payloadFor(app.ID, "ref-1", 450)
		replay, err := s.processor.Process(s.ctx, replayBody, sign(replayBody))
		s.Require().NoError(err)
		s.True(replay.AlreadyProcessed)
		s.Equal(first.EventID, replay.EventID)
		s.Equal(first.ProcessedAt.Unix(), replay.ProcessedAt.Unix())

		got, err := s.svc.Get(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(700, *got.BankingData.CreditScore)
	})

	s.Run("a different reference for the same application applies independently", func() {
		secondBody := payloadFor(app.ID, "ref-2", 650)
		second, err := s.processor.Process(s.ctx, secondBody, sign(secondBody))
		s.Require().NoError(err)
		s.False(second.AlreadyProcessed)
		s.NotEqual(first.EventID, second.EventID)

		got, err := s.svc.Get(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(650, *got.BankingData.CreditScore)
	})
}

// ============================================================
// Failure handling
// ============================================================

func (s *ProcessorSuite) TestFailureHandling() {
	s.Run("unknown application marks the event FAILED", func() {
		body := payloadFor(uuid.New(), "ref-missing", 700)
		_, err := s.processor.Process(s.ctx, body, sign(body))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		event, lookupErr := s.events.FindByIdempotencyKey(s.ctx, "ref-missing")
		s.Require().NoError(lookupErr)
		s.Equal(EventFailed, event.Status)
		s.Require().NotNil(event.ErrorMessage)
		s.Contains(*event.ErrorMessage, "not found")
	})

	s.Run("a FAILED event is retried by a later delivery with the same key", func() {
		app := s.createApplication()

		// Fail first against a missing application id.
		badBody := payloadFor(uuid.New(), "ref-retry", 700)
		_, err := s.processor.Process(s.ctx, badBody, sign(badBody))
		s.Require().Error(err)

		event, err := s.events.FindByIdempotencyKey(s.ctx, "ref-retry")
		s.Require().NoError(err)
		s.Require().Equal(EventFailed, event.Status)

		// Retry with the same reference now targeting a real application.
		goodBody := payloadFor(app.ID, "ref-retry", 720)
		result, err := s.processor.Process(s.ctx, goodBody, sign(goodBody))
		s.Require().NoError(err)
		s.False(result.AlreadyProcessed)
		s.Equal(event.ID, result.EventID)

		event, err = s.events.FindByIdempotencyKey(s.ctx, "ref-retry")
		s.Require().NoError(err)
		s.Equal(EventProcessed, event.Status)
		s.Nil(event.ErrorMessage)

		// The stored record reflects the delivery that was applied, not the
		// one that failed.
		s.Equal(app.ID, event.ApplicationID)
		s.Equal(goodBody, event.Payload)

		got, err := s.svc.Get(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().NotNil(got.BankingData)
		s.Equal(720, *got.BankingData.CreditScore)
	})
}
