package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Causes attached to a job context when it ends early.
var (
	ErrJobCancelled = errors.New("analysis cancelled")
	ErrJobTimeout   = errors.New("analysis time budget exceeded")
)

// Registry maps running job ids to the cancel functions of their contexts.
type Registry struct {
	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]context.CancelCauseFunc)}
}

// Start derives the job context. A positive timeout bounds the whole run.
// release must be called when the run ends.
func (r *Registry) Start(parent context.Context, jobID string, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stopTimer := func() bool { return false }
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() { cancel(ErrJobTimeout) })
		stopTimer = timer.Stop
	}

	r.mu.Lock()
	r.running[jobID] = cancel
	r.mu.Unlock()

	return ctx, func() {
		stopTimer()
		r.mu.Lock()
		delete(r.running, jobID)
		r.mu.Unlock()
		cancel(context.Canceled)
	}
}

// Cancel aborts a running job. It reports false when the job is not running here.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()
	if ok {
		cancel(ErrJobCancelled)
	}
	return ok
}

// Running reports how many jobs are in flight.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
