package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/storage"
)

func TestBlobStoreKeepsCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "reports/2025/07/job.json", "application/json", bytes.NewReader([]byte(`{"a":1}`)))
	require.NoError(t, err)
	require.Equal(t, "memory://reports/2025/07/job.json", uri)

	obj, ok := store.Object(uri)
	require.True(t, ok)
	require.Equal(t, "application/json", obj.ContentType)
	require.JSONEq(t, `{"a":1}`, string(obj.Data))

	obj.Data[0] = 'X'
	again, ok := store.Get("reports/2025/07/job.json")
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, string(again))

	_, ok = store.Get("reports/missing.json")
	require.False(t, ok)
}

func TestBlobStoreWriteOnce(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.PutObject(ctx, "a.json", "", nil)
	require.NoError(t, err)

	_, err = store.PutObject(ctx, "a.json", "", bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, storage.ErrObjectExists)
	require.Equal(t, 1, store.Len())

	_, err = store.PutObject(ctx, " ", "", nil)
	require.Error(t, err)
}

func TestBlobStoreList(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, p := range []string{"reports/2025/08/b.json", "reports/2025/07/a.json", "other/c.json"} {
		_, err := store.PutObject(ctx, p, "application/json", bytes.NewReader([]byte("{}")))
		require.NoError(t, err)
	}

	require.Equal(t, []string{"reports/2025/07/a.json", "reports/2025/08/b.json"}, store.List("reports/"))
	require.Len(t, store.List(""), 3)
	require.Empty(t, store.List("missing/"))
}
