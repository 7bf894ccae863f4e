//go:build integration

package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"loanflow/internal/audit"
	"loanflow/internal/platform/config"
	"loanflow/internal/platform/kafka"
	"loanflow/internal/platform/logger"
	"loanflow/pkg/testutil/containers"
)

// stubOutbox hands out a fixed batch once and records what got marked.
type stubOutbox struct {
	mu        sync.Mutex
	pending   []audit.OutboxEntry
	published []uuid.UUID
}

func (s *stubOutbox) NextBatch(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	batch := s.pending[:limit]
	s.pending = s.pending[limit:]
	return batch, nil
}

func (s *stubOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *stubOutbox) publishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

// TestPublisherBroadcastsOutboxToKafka drains a stub outbox through a real
// broker and reads the records back, verifying payloads and per-key ordering.
func TestPublisherBroadcastsOutboxToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redpanda := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const topic = "loanflow.audit.integration"
	producer, err := kafka.NewProducer(ctx, config.KafkaConfig{
		Brokers:    []string{redpanda.Broker},
		AuditTopic: topic,
	})
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close()

	applicationID := uuid.NewString()
	outbox := &stubOutbox{}
	const entries = 5
	for i := 0; i < entries; i++ {
		outbox.pending = append(outbox.pending, audit.OutboxEntry{
			ID:      uuid.New(),
			Key:     applicationID,
			Payload: []byte(`{"seq":` + string(rune('0'+i)) + `}`),
		})
	}

	publisher := audit.NewPublisher(outbox, producer, logger.NewNop())
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = publisher.Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		return outbox.publishedCount() == entries
	}, 30*time.Second, 100*time.Millisecond, "outbox should drain fully")
	stop()
	<-done

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	deadline := time.Now().Add(30 * time.Second)
	for len(records) < entries && time.Now().Before(deadline) {
		fetchCtx, fetchCancel := context.WithTimeout(ctx, 5*time.Second)
		fetches := consumer.PollFetches(fetchCtx)
		fetchCancel()
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	require.Len(t, records, entries)

	// Same key throughout: one partition, so broker order matches drain order.
	for i, record := range records {
		require.Equal(t, applicationID, string(record.Key))
		require.Equal(t, `{"seq":`+string(rune('0'+i))+`}`, string(record.Value))
	}
}
