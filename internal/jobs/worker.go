package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	dErrors "loanflow/pkg/domain-errors"
)

var tracer = otel.Tracer("loanflow/internal/jobs")

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers     int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	LockLease   time.Duration
}

// TaskProcessor executes one processing attempt for an application.
type TaskProcessor interface {
	Process(ctx context.Context, applicationID uuid.UUID) error
}

// Pool pulls jobs off the queue and executes them under a per-application
// lock. Shutdown is cooperative: cancelling the run context lets in-flight
// jobs finish before the workers exit.
type Pool struct {
	cfg        Config
	queue      *Queue
	processor  TaskProcessor
	locker     Locker
	deadLetter *DeadLetterHandler
	logger     *slog.Logger
}

func NewPool(
	cfg Config,
	queue *Queue,
	processor TaskProcessor,
	locker Locker,
	deadLetter *DeadLetterHandler,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 30 * time.Second
	}
	return &Pool{
		cfg:        cfg,
		queue:      queue,
		processor:  processor,
		locker:     locker,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled and every worker has drained its
// in-flight job.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			p.workerLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue.C():
			p.runJob(ctx, job)
		}
	}
}

// runJob executes one attempt. The in-flight job always completes: only the
// select in workerLoop observes shutdown.
func (p *Pool) runJob(ctx context.Context, job Job) {
	applicationID, err := applicationIDFrom(job)
	if err != nil {
		p.deadLetter.Handle(ctx, job, err)
		return
	}

	release, ok, err := p.locker.Acquire(ctx, applicationID.String(), p.cfg.LockLease)
	if err != nil {
		p.retryOrBury(ctx, job, dErrors.Wrap(err, dErrors.CodeUnavailable, "job lock unavailable"))
		return
	}
	if !ok {
		// Another worker holds this application. Requeue and move on.
		p.retryLater(ctx, job, p.cfg.BaseBackoff)
		return
	}
	defer release()

	spanCtx, span := tracer.Start(ctx, "jobs."+job.Name,
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("application.id", applicationID.String()),
			attribute.Int("job.retry_count", job.RetryCount),
		))
	err = p.processor.Process(spanCtx, applicationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		p.retryOrBury(ctx, job, err)
		return
	}
	span.End()

	p.logger.Info("job completed",
		"job_id", job.ID, "task", job.Name, "application_id", applicationID)
}

func (p *Pool) retryOrBury(ctx context.Context, job Job, cause error) {
	if Classify(cause) == FailurePermanent {
		p.deadLetter.Handle(ctx, job, cause)
		return
	}
	if job.RetryCount >= p.cfg.MaxRetries {
		p.deadLetter.Handle(ctx, job, cause)
		return
	}

	job.RetryCount++
	backoff := p.backoff(job.RetryCount)
	p.logger.Warn("job failed, scheduling retry",
		"job_id", job.ID, "task", job.Name, "attempt", job.RetryCount,
		"backoff", backoff, "error", cause.Error())
	p.retryLater(ctx, job, backoff)
}

// retryLater requeues after the delay without occupying a worker slot.
func (p *Pool) retryLater(ctx context.Context, job Job, delay time.Duration) {
	detached := context.WithoutCancel(ctx)
	time.AfterFunc(delay, func() {
		if err := p.queue.Enqueue(detached, job); err != nil {
			p.deadLetter.Handle(detached, job,
				dErrors.Wrap(err, dErrors.CodeUnavailable, "retry enqueue failed"))
		}
	})
}

func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	return d
}

func applicationIDFrom(job Job) (uuid.UUID, error) {
	raw, ok := job.Kwargs["application_id"]
	if !ok {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "job has no application_id")
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "application_id is not a string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "application_id is not a valid UUID")
	}
	return id, nil
}

// Scheduler enqueues processing jobs for new applications. It implements the
// application service's Scheduler dependency.
type Scheduler struct {
	queue *Queue
}

func NewScheduler(queue *Queue) *Scheduler {
	return &Scheduler{queue: queue}
}

func (s *Scheduler) EnqueueProcessing(ctx context.Context, applicationID uuid.UUID) error {
	job := Job{
		ID:     uuid.New(),
		Name:   TaskProcessApplication,
		Kwargs: map[string]any{"application_id": applicationID.String()},
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		job.Metadata = map[string]string{
			"trace_id": span.TraceID().String(),
			"span_id":  span.SpanID().String(),
		}
	}
	return s.queue.Enqueue(ctx, job)
}
