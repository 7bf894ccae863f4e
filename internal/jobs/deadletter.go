package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// FailedJob is the dead-letter record for a job that exhausted its retry
// budget or failed permanently. Retry counts are stored as text so a display
// layer never chokes on a malformed value.
type FailedJob struct {
	ID           uuid.UUID
	JobID        string
	TaskName     string
	Args         []byte
	Kwargs       []byte
	RetryCount   string
	MaxRetries   string
	ErrorMessage string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// FailedJobStore persists dead-letter records.
type FailedJobStore interface {
	Create(ctx context.Context, failed *FailedJob) error
	List(ctx context.Context, limit int) ([]*FailedJob, error)
}

// DeadLetterHandler captures permanently failed jobs. It never returns an
// error: a broken dead-letter path must not crash the worker, so every
// failure here is logged and swallowed.
type DeadLetterHandler struct {
	store      FailedJobStore
	maxRetries int
	logger     *slog.Logger
}

func NewDeadLetterHandler(store FailedJobStore, maxRetries int, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{store: store, maxRetries: maxRetries, logger: logger}
}

// Handle persists the dead-letter row for job. The job id and task name fall
// back to "unknown" when absent so the record is always writable.
func (h *DeadLetterHandler) Handle(ctx context.Context, job Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("dead letter handler panicked", "panic", r)
		}
	}()

	jobID := "unknown"
	if job.ID != uuid.Nil {
		jobID = job.ID.String()
	}
	taskName := job.Name
	if taskName == "" {
		taskName = "unknown"
	}

	args := marshalOrNil(job.Args)
	kwargs := marshalOrNil(job.Kwargs)

	failed := &FailedJob{
		ID:           uuid.New(),
		JobID:        jobID,
		TaskName:     taskName,
		Args:         args,
		Kwargs:       kwargs,
		RetryCount:   strconv.Itoa(job.RetryCount),
		MaxRetries:   strconv.Itoa(h.maxRetries),
		ErrorMessage: cause.Error(),
		Metadata:     traceMetadata(ctx, job),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.store.Create(context.WithoutCancel(ctx), failed); err != nil {
		h.logger.Error("failed to persist dead letter record",
			"job_id", jobID, "task", taskName, "error", err, "cause", cause.Error())
		return
	}

	h.logger.Warn("job moved to dead letter queue",
		"job_id", jobID, "task", taskName, "retries", job.RetryCount, "cause", cause.Error())
}

func marshalOrNil(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// traceMetadata collects trace correlation values. Priority order: the
// job's own metadata, then its kwargs, then the active span on the context.
func traceMetadata(ctx context.Context, job Job) map[string]string {
	md := make(map[string]string)

	if id, ok := job.Metadata["trace_id"]; ok && id != "" {
		md["trace_id"] = id
	}
	if id, ok := job.Metadata["span_id"]; ok && id != "" {
		md["span_id"] = id
	}

	if md["trace_id"] == "" {
		if raw, ok := job.Kwargs["trace_id"]; ok {
			if id, ok := raw.(string); ok && id != "" {
				md["trace_id"] = id
			}
		}
	}

	if md["trace_id"] == "" {
		if span := trace.SpanContextFromContext(ctx); span.IsValid() {
			md["trace_id"] = span.TraceID().String()
			md["span_id"] = span.SpanID().String()
		}
	}

	for k, v := range job.Metadata {
		if _, exists := md[k]; !exists {
			md[k] = v
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
