package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/platform/logger"
)

type failingFailedJobStore struct{}

func (failingFailedJobStore) Create(context.Context, *FailedJob) error {
	return errors.New("dead letter table unavailable")
}

func (failingFailedJobStore) List(context.Context, int) ([]*FailedJob, error) {
	return nil, nil
}

func TestDeadLetterHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("records id, task, counts and error", func(t *testing.T) {
		store := NewInMemoryFailedJobStore()
		handler := NewDeadLetterHandler(store, 5, logger.NewNop())

		job := Job{
			ID:         uuid.New(),
			Name:       TaskProcessApplication,
			Kwargs:     map[string]any{"application_id": uuid.NewString()},
			RetryCount: 5,
		}
		handler.Handle(ctx, job, errors.New("boom"))

		failed, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, job.ID.String(), failed[0].JobID)
		assert.Equal(t, TaskProcessApplication, failed[0].TaskName)
		assert.Equal(t, "5", failed[0].RetryCount)
		assert.Equal(t, "5", failed[0].MaxRetries)
		assert.Equal(t, "boom", failed[0].ErrorMessage)
		assert.Contains(t, string(failed[0].Kwargs), "application_id")
	})

	t.Run("falls back to unknown for missing id and name", func(t *testing.T) {
		store := NewInMemoryFailedJobStore()
		handler := NewDeadLetterHandler(store, 3, logger.NewNop())

		handler.Handle(ctx, Job{}, errors.New("boom"))

		failed, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "unknown", failed[0].JobID)
		assert.Equal(t, "unknown", failed[0].TaskName)
	})

	t.Run("job metadata trace wins over kwargs trace", func(t *testing.T) {
		store := NewInMemoryFailedJobStore()
		handler := NewDeadLetterHandler(store, 3, logger.NewNop())

		handler.Handle(ctx, Job{
			ID:       uuid.New(),
			Name:     TaskProcessApplication,
			Metadata: map[string]string{"trace_id": "from-metadata"},
			Kwargs:   map[string]any{"trace_id": "from-kwargs"},
		}, errors.New("boom"))

		failed, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "from-metadata", failed[0].Metadata["trace_id"])
	})

	t.Run("kwargs trace used when metadata has none", func(t *testing.T) {
		store := NewInMemoryFailedJobStore()
		handler := NewDeadLetterHandler(store, 3, logger.NewNop())

		handler.Handle(ctx, Job{
			ID:     uuid.New(),
			Name:   TaskProcessApplication,
			Kwargs: map[string]any{"trace_id": "from-kwargs"},
		}, errors.New("boom"))

		failed, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "from-kwargs", failed[0].Metadata["trace_id"])
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		handler := NewDeadLetterHandler(failingFailedJobStore{}, 3, logger.NewNop())
		assert.NotPanics(t, func() {
			handler.Handle(ctx, Job{ID: uuid.New(), Name: TaskProcessApplication}, errors.New("boom"))
		})
	})
}
