package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "reports"})
	require.Error(t, err)

	_, err = New(newClient(t), Config{Bucket: "  "})
	require.ErrorIs(t, err, ErrBucketRequired)
}

func TestURI(t *testing.T) {
	t.Parallel()

	store, err := New(newClient(t), Config{Bucket: " link-reports "})
	require.NoError(t, err)
	require.Equal(t, "gs://link-reports/reports/2025/07/job-1.json", store.URI("reports/2025/07/job-1.json"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newClient(t), Config{Bucket: "reports"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "application/json", nil)
	require.Error(t, err)
}
