package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// ErrObjectExists is returned by blob stores when a write-once object is rewritten.
var ErrObjectExists = errors.New("object already exists")

const contentTypeJSON = "application/json"

// Archiver writes finished results under <prefix>/<yyyy>/<mm>/<id>.json.
type Archiver struct {
	store  linkcheck.BlobStore
	prefix string
}

// NewArchiver returns nil when store is nil, which disables archiving.
func NewArchiver(store linkcheck.BlobStore, prefix string) *Archiver {
	if store == nil {
		return nil
	}
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/")}
}

// ObjectPath returns the archive key for a job.
func (a *Archiver) ObjectPath(jobID string, completedAt time.Time) string {
	return path.Join(a.prefix, completedAt.UTC().Format("2006/01"), jobID+".json")
}

// Archive uploads the result and returns its URI.
func (a *Archiver) Archive(ctx context.Context, result linkcheck.Result, completedAt time.Time) (string, error) {
	if a == nil {
		return "", nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	uri, err := a.store.PutObject(ctx, a.ObjectPath(result.AnalysisID, completedAt), contentTypeJSON, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return uri, nil
}
