package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/storage"
	"github.com/JakeFAU/broken-link-analyzer/internal/storage/memory"
)

func TestArchiverWritesReport(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	archiver := storage.NewArchiver(blobs, "/reports/")
	completed := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	result := linkcheck.BuildResult("job-1", "https://example.com/", 1, nil, time.Second)

	uri, err := archiver.Archive(context.Background(), result, completed)
	require.NoError(t, err)
	require.Equal(t, "memory://reports/2025/07/job-1.json", uri)

	data, ok := blobs.Get("reports/2025/07/job-1.json")
	require.True(t, ok)
	var got linkcheck.Result
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, result, got)
	obj, _ := blobs.Object(uri)
	require.Equal(t, "application/json", obj.ContentType)

	_, err = archiver.Archive(context.Background(), result, completed)
	require.ErrorIs(t, err, storage.ErrObjectExists)
}

func TestNilArchiverIsDisabled(t *testing.T) {
	t.Parallel()

	archiver := storage.NewArchiver(nil, "reports")
	require.Nil(t, archiver)
	uri, err := archiver.Archive(context.Background(), linkcheck.Result{}, time.Now())
	require.NoError(t, err)
	require.Empty(t, uri)
}
