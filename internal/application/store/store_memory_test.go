package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"loanflow/internal/application/models"
	"loanflow/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemoryStoreSuite) newApplication(country models.Country, hash string) *models.Application {
	now := time.Now().UTC()
	return &models.Application{
		ID:               uuid.New(),
		Country:          country,
		FullName:         "Maria Garcia Lopez",
		IdentityDocument: "12345678Z",
		DocumentHash:     hash,
		RequestedAmount:  decimal.NewFromInt(10000),
		Currency:         models.CurrencyEUR,
		MonthlyIncome:    decimal.NewFromInt(3000),
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ============================================================
// Create
// ============================================================

func (s *InMemoryStoreSuite) TestCreate() {
	s.Run("stores and retrieves an application", func() {
		app := s.newApplication(models.CountryES, "hash-create-1")
		s.Require().NoError(s.store.Create(s.ctx, app))

		got, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(app.ID, got.ID)
		s.Equal(models.StatusPending, got.Status)
		s.True(got.RequestedAmount.Equal(decimal.NewFromInt(10000)))
	})

	s.Run("rejects a second active application for the same document", func() {
		first := s.newApplication(models.CountryES, "hash-dup")
		s.Require().NoError(s.store.Create(s.ctx, first))

		second := s.newApplication(models.CountryES, "hash-dup")
		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, sentinel.ErrDuplicateActive)
	})

	s.Run("allows the same document in a different country", func() {
		first := s.newApplication(models.CountryES, "hash-cross")
		s.Require().NoError(s.store.Create(s.ctx, first))

		second := s.newApplication(models.CountryMX, "hash-cross")
		second.Currency = models.CurrencyMXN
		s.NoError(s.store.Create(s.ctx, second))
	})

	s.Run("allows a new application once the previous one is terminal", func() {
		first := s.newApplication(models.CountryES, "hash-terminal")
		s.Require().NoError(s.store.Create(s.ctx, first))

		first.Status = models.StatusRejected
		s.Require().NoError(s.store.Update(s.ctx, first))

		second := s.newApplication(models.CountryES, "hash-terminal")
		s.NoError(s.store.Create(s.ctx, second))
	})

	s.Run("rejects a reused idempotency key", func() {
		key := "idem-123"
		first := s.newApplication(models.CountryES, "hash-idem-1")
		first.IdempotencyKey = &key
		s.Require().NoError(s.store.Create(s.ctx, first))

		second := s.newApplication(models.CountryES, "hash-idem-2")
		second.IdempotencyKey = &key
		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, ErrIdempotencyConflict)
	})
}

// ============================================================
// Lookup
// ============================================================

func (s *InMemoryStoreSuite) TestLookup() {
	s.Run("FindByID returns not found for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, uuid.New())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("FindByIdempotencyKey returns the original application", func() {
		key := "idem-lookup"
		app := s.newApplication(models.CountryES, "hash-lookup")
		app.IdempotencyKey = &key
		s.Require().NoError(s.store.Create(s.ctx, app))

		got, err := s.store.FindByIdempotencyKey(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(app.ID, got.ID)
	})

	s.Run("FindActiveForUpdate skips terminal applications", func() {
		app := s.newApplication(models.CountryES, "hash-active")
		s.Require().NoError(s.store.Create(s.ctx, app))

		app.Status = models.StatusCancelled
		s.Require().NoError(s.store.Update(s.ctx, app))

		_, err := s.store.FindActiveForUpdate(s.ctx, models.CountryES, "hash-active")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned applications are copies", func() {
		app := s.newApplication(models.CountryES, "hash-copy")
		app.ValidationErrors = []string{"original"}
		s.Require().NoError(s.store.Create(s.ctx, app))

		got, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		got.ValidationErrors[0] = "mutated"
		got.Status = models.StatusApproved

		again, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal([]string{"original"}, again.ValidationErrors)
		s.Equal(models.StatusPending, again.Status)
	})
}

// ============================================================
// Soft delete
// ============================================================

func (s *InMemoryStoreSuite) TestSoftDelete() {
	s.Run("hides the application from reads", func() {
		app := s.newApplication(models.CountryES, "hash-del")
		s.Require().NoError(s.store.Create(s.ctx, app))

		s.Require().NoError(s.store.SoftDelete(s.ctx, app.ID, time.Now().UTC()))

		_, err := s.store.FindByID(s.ctx, app.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("deleting twice reports not found", func() {
		app := s.newApplication(models.CountryES, "hash-del-twice")
		s.Require().NoError(s.store.Create(s.ctx, app))
		s.Require().NoError(s.store.SoftDelete(s.ctx, app.ID, time.Now().UTC()))

		err := s.store.SoftDelete(s.ctx, app.ID, time.Now().UTC())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// ============================================================
// List and stats
// ============================================================

func (s *InMemoryStoreSuite) TestListAndStats() {
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		app := s.newApplication(models.CountryES, "hash-list-es-"+uuid.NewString())
		app.CreatedAt = base.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.Create(s.ctx, app))
	}
	mx := s.newApplication(models.CountryMX, "hash-list-mx")
	mx.Currency = models.CurrencyMXN
	mx.RequestedAmount = decimal.NewFromInt(50000)
	s.Require().NoError(s.store.Create(s.ctx, mx))

	s.Run("filters by country", func() {
		got, err := s.store.List(s.ctx, models.ListFilter{Country: models.CountryMX})
		s.Require().NoError(err)
		s.Len(got, 1)
		s.Equal(mx.ID, got[0].ID)
	})

	s.Run("orders newest first and paginates", func() {
		got, err := s.store.List(s.ctx, models.ListFilter{Country: models.CountryES, Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.True(got[0].CreatedAt.After(got[1].CreatedAt))

		rest, err := s.store.List(s.ctx, models.ListFilter{Country: models.CountryES, Limit: 2, Offset: 2})
		s.Require().NoError(err)
		s.Len(rest, 1)
	})

	s.Run("stats aggregate totals and averages", func() {
		stats, err := s.store.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(4), stats.Total)
		s.Equal(int64(3), stats.ByCountry[models.CountryES])
		s.Equal(int64(1), stats.ByCountry[models.CountryMX])
		s.Equal(int64(4), stats.ByStatus[models.StatusPending])
		// (3*10000 + 50000) / 4
		s.True(stats.AverageAmount.Equal(decimal.NewFromInt(20000)))
	})
}

// ============================================================
// Concurrency
// ============================================================

// TestConcurrentCreateSingleWinner drives N goroutines through the same
// check-then-insert critical section a creator uses. Exactly one insert may
// succeed; everyone else must observe the winner or the duplicate sentinel.
func (s *InMemoryStoreSuite) TestConcurrentCreateSingleWinner() {
	const workers = 20
	runner := NewInMemoryTxRunner()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
				if _, err := s.store.FindActiveForUpdate(ctx, models.CountryES, "hash-race"); err == nil {
					return sentinel.ErrDuplicateActive
				}
				return s.store.Create(ctx, s.newApplication(models.CountryES, "hash-race"))
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			default:
				s.ErrorIs(err, sentinel.ErrDuplicateActive)
				duplicates++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, created)
	s.Equal(workers-1, duplicates)

	got, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(got, 1)
}
