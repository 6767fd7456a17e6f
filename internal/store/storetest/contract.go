// Package storetest holds behaviour shared by every linkcheck.JobStore backend.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// Factory returns an empty store; the test closes it.
type Factory func(t *testing.T) linkcheck.JobStore

// Run exercises the JobStore contract against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("transitions", func(t *testing.T) { testTransitions(t, newStore(t)) })
	t.Run("progress", func(t *testing.T) { testProgress(t, newStore(t)) })
	t.Run("results", func(t *testing.T) { testResults(t, newStore(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newStore(t)) })
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewJob builds a pending job for tests.
func NewJob(id string, startedAt time.Time) linkcheck.Job {
	return linkcheck.Job{
		ID:              id,
		OwnerID:         "owner-1",
		TargetURL:       "https://example.com/",
		IncludeExternal: true,
		Status:          linkcheck.StatusPending,
		StartedAt:       startedAt,
	}
}

func testLifecycle(t *testing.T, store linkcheck.JobStore) {
	defer func() { require.NoError(t, store.Close()) }()
	ctx := context.Background()
	job := NewJob("job-1", base)

	require.NoError(t, store.Create(ctx, job))
	require.ErrorIs(t, store.Create(ctx, job), linkcheck.ErrJobExists)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, linkcheck.StatusPending, got.Status)
	require.Equal(t, job.TargetURL, got.TargetURL)
	require.True(t, got.StartedAt.Equal(base))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, linkcheck.ErrJobNotFound)

	require.NoError(t, store.UpdateStatus(ctx, job.ID, linkcheck.StatusRunning, linkcheck.StatusPatch{}))
	done := base.Add(3 * time.Second)
	require.NoError(t, store.UpdateStatus(ctx, job.ID, linkcheck.StatusFailed, linkcheck.StatusPatch{
		Error:       "page fetch timed out",
		CompletedAt: &done,
	}))

	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, linkcheck.StatusFailed, got.Status)
	require.Equal(t, "page fetch timed out", got.Error)
	require.NotNil(t, got.CompletedAt)
	require.True(t, got.CompletedAt.Equal(done))
}

func testTransitions(t *testing.T, store linkcheck.JobStore) {
	defer func() { require.NoError(t, store.Close()) }()
	ctx := context.Background()

	require.ErrorIs(t,
		store.UpdateStatus(ctx, "missing", linkcheck.StatusRunning, linkcheck.StatusPatch{}),
		linkcheck.ErrJobNotFound)

	require.NoError(t, store.Create(ctx, NewJob("job-a", base)))
	require.ErrorIs(t,
		store.UpdateStatus(ctx, "job-a", linkcheck.StatusCompleted, linkcheck.StatusPatch{}),
		linkcheck.ErrInvalidTransition)
	require.NoError(t, store.UpdateStatus(ctx, "job-a", linkcheck.StatusCancelled, linkcheck.StatusPatch{}))
	err := store.UpdateStatus(ctx, "job-a", linkcheck.StatusRunning, linkcheck.StatusPatch{Error: "late"})
	require.ErrorIs(t, err, linkcheck.ErrInvalidTransition)

	got, err := store.Get(ctx, "job-a")
	require.NoError(t, err)
	require.Equal(t, linkcheck.StatusCancelled, got.Status)
	require.Empty(t, got.Error, "rejected transitions must not mutate")

	require.NoError(t, store.Create(ctx, NewJob("job-b", base)))
	require.NoError(t, store.UpdateStatus(ctx, "job-b", linkcheck.StatusRunning, linkcheck.StatusPatch{}))
	require.NoError(t, store.UpdateStatus(ctx, "job-b", linkcheck.StatusCompleted, linkcheck.StatusPatch{}))
	require.ErrorIs(t,
		store.UpdateStatus(ctx, "job-b", linkcheck.StatusCancelled, linkcheck.StatusPatch{}),
		linkcheck.ErrInvalidTransition)
}

func testProgress(t *testing.T, store linkcheck.JobStore) {
	defer func() { require.NoError(t, store.Close()) }()
	ctx := context.Background()

	require.ErrorIs(t, store.UpdateProgress(ctx, "missing", linkcheck.Progress{Percent: 5}), linkcheck.ErrJobNotFound)
	require.NoError(t, store.Create(ctx, NewJob("job-p", base)))

	require.NoError(t, store.UpdateProgress(ctx, "job-p", linkcheck.Progress{
		Percent: 40, PagesAnalyzed: 1, LinksFound: 10, BrokenLinkCount: 2,
	}))
	require.NoError(t, store.UpdateProgress(ctx, "job-p", linkcheck.Progress{
		Percent: 20, PagesAnalyzed: 1, LinksFound: 10, BrokenLinkCount: 1,
	}))

	got, err := store.Get(ctx, "job-p")
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)
	require.Equal(t, 1, got.PagesAnalyzed)
	require.Equal(t, 10, got.LinksFound)
	require.Equal(t, 2, got.BrokenLinkCount)

	require.NoError(t, store.UpdateProgress(ctx, "job-p", linkcheck.Progress{Percent: 250}))
	got, err = store.Get(ctx, "job-p")
	require.NoError(t, err)
	require.Equal(t, 100, got.Progress)
}

func testResults(t *testing.T, store linkcheck.JobStore) {
	defer func() { require.NoError(t, store.Close()) }()
	ctx := context.Background()

	_, err := store.GetResult(ctx, "missing")
	require.ErrorIs(t, err, linkcheck.ErrJobNotFound)

	require.NoError(t, store.Create(ctx, NewJob("job-r", base)))
	_, err = store.GetResult(ctx, "job-r")
	require.ErrorIs(t, err, linkcheck.ErrResultNotFound)

	result := linkcheck.BuildResult("job-r", "https://example.com/", 1, []linkcheck.CheckedLink{
		{URL: "https://example.com/a", Classification: linkcheck.Internal, StatusCode: 200, Kind: linkcheck.KindHyperlink},
		{URL: "https://example.com/b", Classification: linkcheck.Internal, StatusCode: 404, ErrorType: "Not Found",
			Kind: linkcheck.KindHyperlink, SourceURL: "https://example.com/"},
	}, 1200*time.Millisecond)
	require.ErrorIs(t, store.SaveResult(ctx, "job-r", result), linkcheck.ErrJobNotRunning)
	require.NoError(t, store.UpdateStatus(ctx, "job-r", linkcheck.StatusRunning, linkcheck.StatusPatch{}))
	require.NoError(t, store.SaveResult(ctx, "job-r", result))
	require.ErrorIs(t, store.SaveResult(ctx, "job-r", result), linkcheck.ErrResultExists)
	require.ErrorIs(t, store.SaveResult(ctx, "missing", result), linkcheck.ErrJobNotFound)

	require.NoError(t, store.Create(ctx, NewJob("job-c", base)))
	require.NoError(t, store.UpdateStatus(ctx, "job-c", linkcheck.StatusRunning, linkcheck.StatusPatch{}))
	require.NoError(t, store.UpdateStatus(ctx, "job-c", linkcheck.StatusCancelled, linkcheck.StatusPatch{}))
	require.ErrorIs(t, store.SaveResult(ctx, "job-c", result), linkcheck.ErrJobNotRunning)
	_, err = store.GetResult(ctx, "job-c")
	require.ErrorIs(t, err, linkcheck.ErrResultNotFound)

	first, err := store.GetResult(ctx, "job-r")
	require.NoError(t, err)
	require.Equal(t, result, first)

	first.BrokenLinks[0].URL = "mutated"
	second, err := store.GetResult(ctx, "job-r")
	require.NoError(t, err)
	require.Equal(t, mustJSON(t, result), mustJSON(t, second))
}

func testHistory(t *testing.T, store linkcheck.JobStore) {
	defer func() { require.NoError(t, store.Close()) }()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := NewJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			job.OwnerID = "owner-2"
		}
		require.NoError(t, store.Create(ctx, job))
	}

	jobs, total, err := store.ListHistory(ctx, "", 1, 2)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Equal(t, []string{"job-4", "job-3"}, ids(jobs))

	jobs, total, err = store.ListHistory(ctx, "owner-1", 2, 3)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, []string{"job-0"}, ids(jobs))

	jobs, total, err = store.ListHistory(ctx, "owner-1", 9, 3)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Empty(t, jobs)

	jobs, _, err = store.ListHistory(ctx, "nobody", 1, 10)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func ids(jobs []linkcheck.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
