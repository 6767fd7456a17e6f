package linkcheck

import (
	"context"
	"io"
	"time"
)

// JobStore owns AnalysisJob and Result records. Implementations must be safe
// for concurrent use; mutation is keyed by job id.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	UpdateStatus(ctx context.Context, jobID string, status Status, patch StatusPatch) error
	UpdateProgress(ctx context.Context, jobID string, progress Progress) error
	// SaveResult fails with ErrJobNotRunning unless the job is running.
	SaveResult(ctx context.Context, jobID string, result Result) error
	GetResult(ctx context.Context, jobID string) (Result, error)
	ListHistory(ctx context.Context, ownerID string, page, limit int) ([]Job, int, error)
	Close() error
}

// PageFetcher downloads the page under analysis.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns a page body into ordered link candidates.
type Extractor interface {
	Extract(body []byte) []LinkCandidate
}

// LinkVerifier checks every resolved link and returns results in input order.
// observe is invoked once per link from a single goroutine.
type LinkVerifier interface {
	VerifyAll(ctx context.Context, links []ResolvedLink, sourceURL string, observe func(CheckedLink)) []CheckedLink
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
