// Package dispatcher admits analysis jobs and fans queue work out to workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/worker"
)

// ErrQueueUnavailable marks a job that was created but could not be queued.
var ErrQueueUnavailable = errors.New("analysis queue unavailable")

// nonBlockingQueue is implemented by queues that can refuse work immediately.
type nonBlockingQueue interface {
	TryEnqueue(item linkcheck.QueueItem) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue    linkcheck.Queue
	workers  []*worker.Worker
	store    linkcheck.JobStore
	registry *worker.Registry
	ids      linkcheck.IDGenerator
	clock    linkcheck.Clock
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue linkcheck.Queue,
	workers []*worker.Worker,
	store linkcheck.JobStore,
	registry *worker.Registry,
	ids linkcheck.IDGenerator,
	clock linkcheck.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = worker.NewRegistry()
	}
	return &Dispatcher{
		queue:    queue,
		workers:  workers,
		store:    store,
		registry: registry,
		ids:      ids,
		clock:    clock,
		logger:   logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() { w.Run(ctx) })
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item linkcheck.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// offer prefers a non-blocking push so a full queue rejects the job at once.
func (d *Dispatcher) offer(ctx context.Context, item linkcheck.QueueItem) error {
	q, ok := d.queue.(nonBlockingQueue)
	if !ok {
		return d.Enqueue(ctx, item)
	}
	if err := q.TryEnqueue(item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Admit validates the parameters and records a pending job without queueing it.
func (d *Dispatcher) Admit(ctx context.Context, params linkcheck.JobParameters) (linkcheck.Job, error) {
	target, err := linkcheck.ParseTarget(params.TargetURL)
	if err != nil {
		return linkcheck.Job{}, err
	}
	params.TargetURL = target.String()

	id, err := d.ids.NewID()
	if err != nil {
		return linkcheck.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := linkcheck.Job{
		ID:              id,
		OwnerID:         params.OwnerID,
		TargetURL:       params.TargetURL,
		IncludeExternal: params.IncludeExternal,
		Status:          linkcheck.StatusPending,
		StartedAt:       d.clock.Now(),
	}
	if err := d.store.Create(ctx, job); err != nil {
		return linkcheck.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Submit admits a job and queues it. When the queue refuses the item the job
// is marked failed and ErrQueueUnavailable is returned.
func (d *Dispatcher) Submit(ctx context.Context, params linkcheck.JobParameters) (linkcheck.Job, error) {
	job, err := d.Admit(ctx, params)
	if err != nil {
		return linkcheck.Job{}, err
	}
	params.TargetURL = job.TargetURL

	item := linkcheck.QueueItem{JobID: job.ID, Params: params, Submitted: job.StartedAt}
	if err := d.offer(ctx, item); err != nil {
		now := d.clock.Now()
		msg := fmt.Sprintf("job could not be queued: %v", err)
		if updateErr := d.store.UpdateStatus(context.WithoutCancel(ctx), job.ID, linkcheck.StatusFailed,
			linkcheck.StatusPatch{Error: msg, CompletedAt: &now}); updateErr != nil {
			d.logger.Error("mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return job, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	d.logger.Info("job accepted", zap.String("job_id", job.ID), zap.String("url", job.TargetURL))
	return job, nil
}

// Cancel moves a job to cancelled and aborts its run when one is in flight.
// A terminal job is returned with ErrInvalidTransition.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (linkcheck.Job, error) {
	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return linkcheck.Job{}, err
	}
	if linkcheck.IsTerminal(job.Status) {
		return job, fmt.Errorf("%w: %s -> %s", linkcheck.ErrInvalidTransition, job.Status, linkcheck.StatusCancelled)
	}
	now := d.clock.Now()
	err = d.store.UpdateStatus(ctx, jobID, linkcheck.StatusCancelled, linkcheck.StatusPatch{CompletedAt: &now})
	if err != nil {
		if errors.Is(err, linkcheck.ErrInvalidTransition) {
			// Finished between the read and the update.
			current, getErr := d.store.Get(ctx, jobID)
			if getErr != nil {
				return linkcheck.Job{}, fmt.Errorf("load job: %w", getErr)
			}
			return current, err
		}
		return linkcheck.Job{}, err
	}
	aborted := d.registry.Cancel(jobID)
	d.logger.Info("job cancelled", zap.String("job_id", jobID), zap.Bool("was_running", aborted))

	job, err = d.store.Get(ctx, jobID)
	if err != nil {
		return linkcheck.Job{}, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}
