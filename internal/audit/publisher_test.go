package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []OutboxEntry
	published []uuid.UUID
}

func (f *fakeOutbox) NextBatch(_ context.Context, limit int) ([]OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ids...)
	remaining := f.pending[:0]
	for _, e := range f.pending {
		keep := true
		for _, id := range ids {
			if e.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, e)
		}
	}
	f.pending = remaining
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	sent   []string
	failOn string
}

func (f *fakeBroadcaster) Publish(_ context.Context, key, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if string(key) == f.failOn {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, string(key))
	return nil
}

type PublisherSuite struct {
	suite.Suite
	outbox      *fakeOutbox
	broadcaster *fakeBroadcaster
	publisher   *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.outbox = &fakeOutbox{}
	s.broadcaster = &fakeBroadcaster{}
	s.publisher = NewPublisher(s.outbox, s.broadcaster, slog.Default())
}

func entry(key string) OutboxEntry {
	return OutboxEntry{ID: uuid.New(), Key: key, Payload: []byte(`{}`)}
}

func (s *PublisherSuite) TestDrainPublishesAndMarks() {
	a, b := entry("app-1"), entry("app-2")
	s.outbox.pending = []OutboxEntry{a, b}

	s.Require().NoError(s.publisher.drainOnce(context.Background()))

	s.Equal([]string{"app-1", "app-2"}, s.broadcaster.sent)
	s.ElementsMatch([]uuid.UUID{a.ID, b.ID}, s.outbox.published)
	s.Empty(s.outbox.pending)
}

func (s *PublisherSuite) TestDrainStopsAtFirstFailure() {
	a, b, c := entry("app-1"), entry("app-2"), entry("app-3")
	s.outbox.pending = []OutboxEntry{a, b, c}
	s.broadcaster.failOn = "app-2"

	s.Require().NoError(s.publisher.drainOnce(context.Background()))

	// Only the prefix before the failure is marked; the rest is retried on
	// the next tick, preserving order.
	s.Equal([]string{"app-1"}, s.broadcaster.sent)
	s.ElementsMatch([]uuid.UUID{a.ID}, s.outbox.published)
	s.Len(s.outbox.pending, 2)
}

func (s *PublisherSuite) TestEmptyOutboxIsANoOp() {
	s.Require().NoError(s.publisher.drainOnce(context.Background()))
	s.Empty(s.broadcaster.sent)
	s.Empty(s.outbox.published)
}
