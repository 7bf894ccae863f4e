// Package jobs runs background application processing: a bounded in-memory
// queue, a worker pool with per-application distributed locking, bounded
// retries with exponential backoff, and dead-letter capture on exhaustion.
package jobs

import (
	"context"

	"github.com/google/uuid"

	dErrors "loanflow/pkg/domain-errors"
)

// TaskProcessApplication is the only task the pipeline currently executes.
const TaskProcessApplication = "process_application"

// Job is one unit of background work. Kwargs carry the task inputs; Metadata
// carries correlation values (request id, trace context) that survive into
// the dead-letter record when the job exhausts its retries.
type Job struct {
	ID         uuid.UUID
	Name       string
	Args       []any
	Kwargs     map[string]any
	Metadata   map[string]string
	RetryCount int
}

// Queue is a bounded in-process job queue. Enqueue never blocks: a full
// queue is a capacity fault surfaced to the caller, not a stall.
type Queue struct {
	jobs chan Job
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{jobs: make(chan Job, size)}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return dErrors.New(dErrors.CodeUnavailable, "job queue is full")
	}
}

// C exposes the receive side for workers.
func (q *Queue) C() <-chan Job {
	return q.jobs
}

// Len reports the current backlog.
func (q *Queue) Len() int {
	return len(q.jobs)
}
