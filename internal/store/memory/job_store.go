// Package memory provides an in-memory linkcheck.JobStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// JobStore keeps jobs and results in maps guarded by a single RWMutex.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]linkcheck.Job
	results map[string][]byte
	codec   resultCodec
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]linkcheck.Job),
		results: make(map[string][]byte),
	}
}

// Create stores a new job.
func (s *JobStore) Create(_ context.Context, job linkcheck.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", linkcheck.ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (linkcheck.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return linkcheck.Job{}, linkcheck.ErrJobNotFound
	}
	return job, nil
}

// UpdateStatus moves a job to status when the transition is legal.
func (s *JobStore) UpdateStatus(
	_ context.Context,
	jobID string,
	status linkcheck.Status,
	patch linkcheck.StatusPatch,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return linkcheck.ErrJobNotFound
	}
	if !linkcheck.CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", linkcheck.ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	if patch.Error != "" {
		job.Error = patch.Error
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = pointerTime(*patch.CompletedAt)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateProgress merges counters without letting any of them go backwards.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, progress linkcheck.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return linkcheck.ErrJobNotFound
	}
	job.Progress = max(job.Progress, min(progress.Percent, 100))
	job.PagesAnalyzed = max(job.PagesAnalyzed, progress.PagesAnalyzed)
	job.LinksFound = max(job.LinksFound, progress.LinksFound)
	job.BrokenLinkCount = max(job.BrokenLinkCount, progress.BrokenLinkCount)
	s.jobs[jobID] = job
	return nil
}

// SaveResult attaches the final result once, and only to a running job.
func (s *JobStore) SaveResult(_ context.Context, jobID string, result linkcheck.Result) error {
	data, err := s.codec.encode(result)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return linkcheck.ErrJobNotFound
	}
	if job.Status != linkcheck.StatusRunning {
		return fmt.Errorf("%w: %s", linkcheck.ErrJobNotRunning, job.Status)
	}
	if _, exists := s.results[jobID]; exists {
		return linkcheck.ErrResultExists
	}
	s.results[jobID] = data
	return nil
}

// GetResult returns a fresh copy of the saved result.
func (s *JobStore) GetResult(_ context.Context, jobID string) (linkcheck.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return linkcheck.Result{}, linkcheck.ErrJobNotFound
	}
	data, ok := s.results[jobID]
	if !ok {
		return linkcheck.Result{}, linkcheck.ErrResultNotFound
	}
	return s.codec.decode(data)
}

// ListHistory returns a newest-first page of jobs. page is 1-based.
func (s *JobStore) ListHistory(_ context.Context, ownerID string, page, limit int) ([]linkcheck.Job, int, error) {
	s.mu.RLock()
	matched := make([]linkcheck.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if ownerID == "" || job.OwnerID == ownerID {
			matched = append(matched, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	offset, limit := linkcheck.PageBounds(page, limit)
	if offset >= len(matched) {
		return []linkcheck.Job{}, len(matched), nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], len(matched), nil
}

// Close is a no-op.
func (s *JobStore) Close() error { return nil }

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
