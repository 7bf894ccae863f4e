package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanflow/pkg/platform/sentinel"
)

// Store persists webhook events. Writes join any transaction bound to ctx
// via pkg/platform/tx.
type Store interface {
	Create(ctx context.Context, event *Event) error
	FindByIdempotencyKey(ctx context.Context, key string) (*Event, error)
	// ResetForRetry rewrites a failed event with the retry delivery's target
	// and payload, returning it to RECEIVED.
	ResetForRetry(ctx context.Context, id uuid.UUID, applicationID uuid.UUID, payload []byte, at time.Time) error
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error
}

// InMemoryStore backs unit tests and the development wiring.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]Event
	byKey  map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[uuid.UUID]Event),
		byKey:  make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[event.IdempotencyKey]; exists {
		return sentinel.ErrConflict
	}
	s.events[event.ID] = cloneEvent(event)
	s.byKey[event.IdempotencyKey] = event.ID
	return nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := s.events[id]
	event := cloneEvent(&stored)
	return &event, nil
}

func (s *InMemoryStore) ResetForRetry(_ context.Context, id uuid.UUID, applicationID uuid.UUID, payload []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.ApplicationID = applicationID
	event.Payload = append([]byte(nil), payload...)
	event.Status = EventReceived
	event.ErrorMessage = nil
	event.UpdatedAt = at
	s.events[id] = event
	return nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.Status = EventProcessed
	event.ProcessedAt = &at
	event.ErrorMessage = nil
	event.UpdatedAt = at
	s.events[id] = event
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id uuid.UUID, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.Status = EventFailed
	event.ErrorMessage = &message
	event.UpdatedAt = at
	s.events[id] = event
	return nil
}

func cloneEvent(event *Event) Event {
	out := *event
	out.Payload = append([]byte(nil), event.Payload...)
	if event.ErrorMessage != nil {
		msg := *event.ErrorMessage
		out.ErrorMessage = &msg
	}
	if event.ProcessedAt != nil {
		at := *event.ProcessedAt
		out.ProcessedAt = &at
	}
	return out
}
