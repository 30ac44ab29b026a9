package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/protocol"
)

// Func is the body of a job. report may be called any number of times.
type Func func(ctx context.Context, id string, report func(percent int, message string)) (any, error)

// StatusPublisher receives every persisted transition.
type StatusPublisher interface {
	PublishJobStatus(ctx context.Context, status protocol.JobStatus) error
}

type RunnerOptions struct {
	Workers    int
	MaxResults int
	TTL        time.Duration
}

// Runner executes jobs on background goroutines. Status goes to the Store;
// results stay in process memory and expire after TTL.
type Runner struct {
	store     Store
	publisher StatusPublisher
	results   *expirable.LRU[string, any]
	slots     chan struct{}
	log       *slog.Logger
	clock     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	transitions metric.Int64Counter
}

// NewRunner builds a runner. publisher may be nil.
func NewRunner(store Store, publisher StatusPublisher, opts RunnerOptions, log *slog.Logger) (*Runner, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 64
	}
	transitions, err := otel.Meter("github.com/loqalabs/loqa-reader/internal/jobs").Int64Counter("reader.jobs.transitions",
		metric.WithDescription("Job status transitions"))
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:       store,
		publisher:   publisher,
		results:     expirable.NewLRU[string, any](opts.MaxResults, nil, opts.TTL),
		slots:       make(chan struct{}, opts.Workers),
		log:         log.With(slog.String("component", "jobs")),
		clock:       time.Now,
		ctx:         ctx,
		cancel:      cancel,
		transitions: transitions,
	}, nil
}

// Submit records a pending job and starts it in the background. The job
// outlives ctx; ctx only bounds the initial save.
func (r *Runner) Submit(ctx context.Context, kind string, fn Func) (Job, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Job{}, ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	now := r.clock().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.persist(ctx, job); err != nil {
		r.wg.Done()
		return Job{}, apperr.Wrap(apperr.KindInternal, "jobs.submit", "job could not be recorded", err)
	}

	go r.run(job, fn)
	return job, nil
}

func (r *Runner) run(job Job, fn Func) {
	defer r.wg.Done()

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-r.ctx.Done():
		r.finish(job, nil, r.ctx.Err())
		return
	}

	job.Status = StatusRunning
	job.Message = "started"
	r.update(&job)

	var mu sync.Mutex
	report := func(percent int, message string) {
		mu.Lock()
		defer mu.Unlock()
		if percent < job.Percent {
			percent = job.Percent
		}
		if percent > 100 {
			percent = 100
		}
		job.Percent = percent
		job.Message = message
		r.update(&job)
	}

	result, err := r.invoke(job.ID, fn, report)
	mu.Lock()
	defer mu.Unlock()
	r.finish(job, result, err)
}

func (r *Runner) invoke(id string, fn Func, report func(int, string)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("job panicked", slog.String("job_id", id), slog.Any("panic", p))
			err = apperr.New(apperr.KindInternal, "jobs.run", "internal error")
		}
	}()
	return fn(r.ctx, id, report)
}

func (r *Runner) finish(job Job, result any, err error) {
	if err != nil {
		job.Status = StatusFailed
		job.Error = apperr.Message(err)
		job.ErrorKind = string(apperr.KindOf(err))
		job.Message = "failed"
		r.log.Warn("job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	} else {
		r.results.Add(job.ID, result)
		job.Status = StatusCompleted
		job.Percent = 100
		job.Message = "completed"
		r.log.Info("job completed", slog.String("job_id", job.ID), slog.String("kind", job.Kind))
	}
	r.update(&job)
}

// update stamps and persists a transition. Failures are logged because the
// job itself keeps going.
func (r *Runner) update(job *Job) {
	job.UpdatedAt = r.clock().UTC()
	if err := r.persist(context.Background(), *job); err != nil {
		r.log.Warn("job status save failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (r *Runner) persist(ctx context.Context, job Job) error {
	if err := r.store.Save(ctx, job); err != nil {
		return err
	}
	r.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(job.Status))))
	if r.publisher != nil {
		if err := r.publisher.PublishJobStatus(ctx, job.statusMessage()); err != nil {
			r.log.Debug("job status publish failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Get returns the current status record.
func (r *Runner) Get(ctx context.Context, id string) (Job, error) {
	return r.store.Get(ctx, id)
}

// Result returns the output of a completed job. Unknown and expired jobs
// give ErrNotFound; unfinished ones give ErrNotReady. A failed job returns
// its record with a nil result.
func (r *Runner) Result(ctx context.Context, id string) (any, Job, error) {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, Job{}, err
	}
	switch job.Status {
	case StatusPending, StatusRunning:
		return nil, job, ErrNotReady
	case StatusFailed:
		return nil, job, nil
	}
	result, ok := r.results.Get(id)
	if !ok {
		return nil, job, ErrNotFound
	}
	return result, job, nil
}

// Close stops accepting jobs and waits for running ones. If ctx ends first
// the remaining jobs are cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Prune asks the store to drop expired records.
func (r *Runner) Prune(ctx context.Context) error {
	return r.store.Prune(ctx)
}
