// Package gcs archives reports in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	linkstorage "github.com/JakeFAU/broken-link-analyzer/internal/storage"
)

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("gcs bucket name is required")

// Config selects the bucket and object headers for archived reports.
type Config struct {
	Bucket       string
	CacheControl string
}

// BlobStore writes each report once; a second write to the same path fails.
type BlobStore struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed blob store. The store owns client and closes it.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs client is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	return &BlobStore{client: client, cfg: cfg}, nil
}

// URI returns the gs:// address of an object in the bucket.
func (s *BlobStore) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, name)
}

// PutObject uploads the report in a single request with a DoesNotExist
// precondition and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object path is required")
	}
	obj := s.client.Bucket(s.cfg.Bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	// Reports are small; skip resumable uploads.
	w.ChunkSize = 0
	w.ContentType = contentType
	w.CacheControl = s.cfg.CacheControl
	w.Metadata = map[string]string{
		"analysis-id": strings.TrimSuffix(path.Base(name), path.Ext(name)),
	}
	if _, err := io.Copy(w, r); err != nil {
		return "", errors.Join(fmt.Errorf("upload %s: %w", s.URI(name), err), w.Close())
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%w: %s", linkstorage.ErrObjectExists, s.URI(name))
		}
		return "", fmt.Errorf("finalize %s: %w", s.URI(name), err)
	}
	return s.URI(name), nil
}

// Close releases the storage client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
