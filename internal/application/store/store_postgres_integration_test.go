//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"loanflow/internal/application/models"
	"loanflow/internal/application/store"
	"loanflow/internal/crypto"
	"loanflow/pkg/platform/sentinel"
	"loanflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	txRunner *store.PostgresTxRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())

	encryptor, err := crypto.NewFieldEncryptor("integration-test-field-key")
	s.Require().NoError(err)

	s.store = store.NewPostgres(s.postgres.DB, encryptor)
	s.txRunner = store.NewPostgresTxRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.postgres.TruncateTables(s.T())
}

func newStoredApplication(country models.Country, documentHash string) *models.Application {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Application{
		ID:               uuid.New(),
		Country:          country,
		FullName:         "Ana Torres",
		IdentityDocument: "12345678Z",
		DocumentHash:     documentHash,
		RequestedAmount:  decimal.NewFromInt(10000),
		Currency:         models.CurrencyEUR,
		MonthlyIncome:    decimal.NewFromInt(2500),
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindDecryptsFields() {
	ctx := context.Background()

	app := newStoredApplication(models.CountryES, uuid.NewString())
	score := decimal.NewFromInt(35)
	app.RiskScore = &score
	verified := true
	app.BankingData = &models.BankingData{
		DocumentVerified:  &verified,
		ProviderReference: "prov-001",
	}
	app.CountryData = map[string]any{"region": "madrid"}

	s.Require().NoError(s.store.Create(ctx, app))

	found, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal("Ana Torres", found.FullName)
	s.Equal("12345678Z", found.IdentityDocument)
	s.True(found.RequestedAmount.Equal(app.RequestedAmount))
	s.True(found.MonthlyIncome.Equal(app.MonthlyIncome))
	s.Require().NotNil(found.RiskScore)
	s.True(found.RiskScore.Equal(score))
	s.Require().NotNil(found.BankingData)
	s.Equal("prov-001", found.BankingData.ProviderReference)
	s.Equal("madrid", found.CountryData["region"])
}

func (s *PostgresStoreSuite) TestSensitiveColumnsAreNotPlaintext() {
	ctx := context.Background()

	app := newStoredApplication(models.CountryES, uuid.NewString())
	s.Require().NoError(s.store.Create(ctx, app))

	var rawName, rawDoc []byte
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT full_name, identity_document FROM applications WHERE id = $1`, app.ID,
	).Scan(&rawName, &rawDoc)
	s.Require().NoError(err)

	s.NotContains(string(rawName), "Ana Torres")
	s.NotContains(string(rawDoc), "12345678Z")
}

// TestConcurrentCreateSameDocument drives the duplicate check the way the
// service does: lock-read inside a transaction, then insert. The unique index
// on (country, document_hash) backstops the insert race, so exactly one
// creator wins regardless of interleaving.
func (s *PostgresStoreSuite) TestConcurrentCreateSameDocument() {
	ctx := context.Background()
	documentHash := uuid.NewString()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, duplicateCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
				_, err := s.store.FindActiveForUpdate(ctx, models.CountryES, documentHash)
				if err == nil {
					return sentinel.ErrDuplicateActive
				}
				if !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				return s.store.Create(ctx, newStoredApplication(models.CountryES, documentHash))
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrDuplicateActive):
				duplicateCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), duplicateCount.Load(), "all others should observe the duplicate")

	var count int
	err := s.postgres.DB.QueryRow(
		`SELECT COUNT(*) FROM applications WHERE document_hash = $1`, documentHash,
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestActiveDocumentConstraintClassification() {
	ctx := context.Background()
	documentHash := uuid.NewString()

	s.Require().NoError(s.store.Create(ctx, newStoredApplication(models.CountryES, documentHash)))

	err := s.store.Create(ctx, newStoredApplication(models.CountryES, documentHash))
	s.ErrorIs(err, sentinel.ErrDuplicateActive)

	// Same document in another country is a different applicant space.
	other := newStoredApplication(models.CountryMX, documentHash)
	other.Currency = models.CurrencyMXN
	s.NoError(s.store.Create(ctx, other))
}

func (s *PostgresStoreSuite) TestIdempotencyKeyConstraintClassification() {
	ctx := context.Background()
	key := uuid.NewString()

	first := newStoredApplication(models.CountryES, uuid.NewString())
	first.IdempotencyKey = &key
	s.Require().NoError(s.store.Create(ctx, first))

	second := newStoredApplication(models.CountryES, uuid.NewString())
	second.IdempotencyKey = &key
	err := s.store.Create(ctx, second)
	s.ErrorIs(err, store.ErrIdempotencyConflict)

	found, err := s.store.FindByIdempotencyKey(ctx, key)
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}

func (s *PostgresStoreSuite) TestTerminalStatusFreesTheDocument() {
	ctx := context.Background()
	documentHash := uuid.NewString()

	rejected := newStoredApplication(models.CountryES, documentHash)
	rejected.Status = models.StatusRejected
	s.Require().NoError(s.store.Create(ctx, rejected))

	// The partial index only covers active statuses, so resubmission works.
	s.NoError(s.store.Create(ctx, newStoredApplication(models.CountryES, documentHash)))
}

func (s *PostgresStoreSuite) TestSoftDeleteFreesTheDocument() {
	ctx := context.Background()
	documentHash := uuid.NewString()

	app := newStoredApplication(models.CountryES, documentHash)
	s.Require().NoError(s.store.Create(ctx, app))
	s.Require().NoError(s.store.SoftDelete(ctx, app.ID, time.Now().UTC()))

	_, err := s.store.FindByID(ctx, app.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.store.Create(ctx, newStoredApplication(models.CountryES, documentHash)))
}

func (s *PostgresStoreSuite) TestUpdatePersistsMutations() {
	ctx := context.Background()

	app := newStoredApplication(models.CountryES, uuid.NewString())
	s.Require().NoError(s.store.Create(ctx, app))

	score := decimal.NewFromInt(72)
	app.Status = models.StatusValidating
	app.RiskScore = &score
	app.ValidationErrors = []string{"amount exceeds income multiple"}
	app.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(ctx, app))

	found, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusValidating, found.Status)
	s.Require().NotNil(found.RiskScore)
	s.True(found.RiskScore.Equal(score))
	s.Equal([]string{"amount exceeds income multiple"}, found.ValidationErrors)
}

func (s *PostgresStoreSuite) TestUpdateMissingRowReturnsNotFound() {
	ctx := context.Background()

	ghost := newStoredApplication(models.CountryES, uuid.NewString())
	s.ErrorIs(s.store.Update(ctx, ghost), sentinel.ErrNotFound)
	s.ErrorIs(s.store.SoftDelete(ctx, ghost.ID, time.Now()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListAndStats() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		app := newStoredApplication(models.CountryES, uuid.NewString())
		app.CreatedAt = app.CreatedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.Create(ctx, app))
	}
	approved := newStoredApplication(models.CountryMX, uuid.NewString())
	approved.Currency = models.CurrencyMXN
	approved.Status = models.StatusApproved
	score := decimal.NewFromInt(20)
	approved.RiskScore = &score
	s.Require().NoError(s.store.Create(ctx, approved))

	all, err := s.store.List(ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 4)

	pendingES, err := s.store.List(ctx, models.ListFilter{Country: models.CountryES, Status: models.StatusPending})
	s.Require().NoError(err)
	s.Len(pendingES, 3)

	paged, err := s.store.List(ctx, models.ListFilter{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Len(paged, 2)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), stats.Total)
	s.Equal(int64(3), stats.ByStatus[models.StatusPending])
	s.Equal(int64(1), stats.ByStatus[models.StatusApproved])
	s.Equal(int64(3), stats.ByCountry[models.CountryES])
	s.True(stats.AverageAmount.Equal(decimal.NewFromInt(10000)))
	s.Require().NotNil(stats.AverageRiskScore)
	s.True(stats.AverageRiskScore.Equal(decimal.NewFromInt(20)))
}
