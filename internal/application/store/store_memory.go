package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	"loanflow/internal/application/statemachine"
	"loanflow/pkg/platform/sentinel"
)

// InMemoryStore keeps applications in process memory. It backs unit tests and
// the development wiring, and it honors the same locking contract as the
// postgres store: the shared InMemoryTxRunner mutex serializes every
// transaction, so check-then-insert sequences cannot interleave.
type InMemoryStore struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]models.Application
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{apps: make(map[uuid.UUID]models.Application)}
}

func (s *InMemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.IdempotencyKey != nil {
		for _, existing := range s.apps {
			if existing.DeletedAt == nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *app.IdempotencyKey {
				return ErrIdempotencyConflict
			}
		}
	}
	for _, existing := range s.apps {
		if existing.DeletedAt == nil &&
			existing.Country == app.Country &&
			existing.DocumentHash == app.DocumentHash &&
			!statemachine.IsFinal(existing.Status) {
			return sentinel.ErrDuplicateActive
		}
	}

	s.apps[app.ID] = cloneApp(app)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok || app.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}
	out := cloneApp(&app)
	return &out, nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.DeletedAt == nil && app.IdempotencyKey != nil && *app.IdempotencyKey == key {
			out := cloneApp(&app)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindActiveForUpdate(_ context.Context, country models.Country, documentHash string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.DeletedAt == nil &&
			app.Country == country &&
			app.DocumentHash == documentHash &&
			!statemachine.IsFinal(app.Status) {
			out := cloneApp(&app)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apps[app.ID]
	if !ok || existing.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	s.apps[app.ID] = cloneApp(app)
	return nil
}

func (s *InMemoryStore) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok || app.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	app.DeletedAt = &at
	app.UpdatedAt = at
	s.apps[id] = app
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Application
	for _, app := range s.apps {
		if app.DeletedAt != nil {
			continue
		}
		if filter.Country != "" && app.Country != filter.Country {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		all = append(all, app)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	offset := filter.Offset
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}

	out := make([]*models.Application, len(all))
	for i := range all {
		c := cloneApp(&all[i])
		out[i] = &c
	}
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Stats{
		ByStatus:      make(map[models.Status]int64),
		ByCountry:     make(map[models.Country]int64),
		AverageAmount: decimal.Zero,
	}

	amountSum := decimal.Zero
	riskSum := decimal.Zero
	var riskCount int64

	for _, app := range s.apps {
		if app.DeletedAt != nil {
			continue
		}
		stats.Total++
		stats.ByStatus[app.Status]++
		stats.ByCountry[app.Country]++
		amountSum = amountSum.Add(app.RequestedAmount)
		if app.RiskScore != nil {
			riskSum = riskSum.Add(*app.RiskScore)
			riskCount++
		}
	}

	if stats.Total > 0 {
		stats.AverageAmount = amountSum.Div(decimal.NewFromInt(stats.Total)).Round(2)
	}
	if riskCount > 0 {
		avg := riskSum.Div(decimal.NewFromInt(riskCount)).Round(2)
		stats.AverageRiskScore = &avg
	}
	return stats, nil
}

// cloneApp copies an application so callers never share slices or maps with
// the store's internal state.
func cloneApp(app *models.Application) models.Application {
	out := *app
	if app.RiskScore != nil {
		rs := *app.RiskScore
		out.RiskScore = &rs
	}
	if app.BankingData != nil {
		bd := *app.BankingData
		out.BankingData = &bd
	}
	if app.ValidationErrors != nil {
		out.ValidationErrors = append([]string(nil), app.ValidationErrors...)
	}
	if app.CountryData != nil {
		out.CountryData = make(map[string]any, len(app.CountryData))
		for k, v := range app.CountryData {
			out.CountryData[k] = v
		}
	}
	if app.IdempotencyKey != nil {
		k := *app.IdempotencyKey
		out.IdempotencyKey = &k
	}
	if app.DeletedAt != nil {
		d := *app.DeletedAt
		out.DeletedAt = &d
	}
	return out
}

// InMemoryTxRunner serializes transactions with one mutex, mirroring the
// serialization the postgres row lock provides for conflicting creators.
// Nested calls join the enclosing critical section instead of deadlocking.
type InMemoryTxRunner struct {
	mu sync.Mutex
}

func NewInMemoryTxRunner() *InMemoryTxRunner {
	return &InMemoryTxRunner{}
}

type memTxKey struct{}

func (r *InMemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}
