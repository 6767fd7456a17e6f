package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/store/storetest"
)

func newStore(t *testing.T) linkcheck.JobStore {
	t.Helper()
	store, err := NewJobStore(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	return store
}

func TestJobStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, newStore)
}

func TestJobStoreReopenKeepsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")
	started := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)

	store, err := NewJobStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, storetest.NewJob("job-1", started)))
	require.NoError(t, store.Close())

	reopened, err := NewJobStore(ctx, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	job, err := reopened.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, job.StartedAt.Equal(started))
	require.Nil(t, job.CompletedAt)
}

func TestNewJobStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewJobStore(context.Background(), "")
	require.Error(t, err)
}
