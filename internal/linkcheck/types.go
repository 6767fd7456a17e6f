package linkcheck

import (
	"net/http"
	"time"
)

// Status represents the lifecycle state of an analysis job.
type Status string

// Job status values persisted in the job store.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ReferenceKind tells whether a candidate came from an anchor or an image.
type ReferenceKind string

// Reference kinds recognised by the extractor.
const (
	KindHyperlink ReferenceKind = "hyperlink"
	KindImage     ReferenceKind = "image"
)

// Classification places a link relative to the analysed page's host.
type Classification string

// Link classifications.
const (
	Internal Classification = "internal"
	External Classification = "external"
)

// ErrorTypeInvalid is recorded for targets that could not be parsed or reached.
const ErrorTypeInvalid = "Invalid URL or Connection Error"

// Error types recorded for failed checks that produced no response.
const (
	ErrorTypeTimeout   = "Timeout"
	ErrorTypeCancelled = "Cancelled"
)

// Job is the record persisted for each analysis request.
type Job struct {
	ID              string     `json:"analysisId"`
	OwnerID         string     `json:"userId,omitempty"`
	TargetURL       string     `json:"url"`
	IncludeExternal bool       `json:"includeExternal"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	PagesAnalyzed   int        `json:"pagesAnalyzed"`
	LinksFound      int        `json:"linksFound"`
	BrokenLinkCount int        `json:"brokenLinks"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Progress carries the counters updated while a job runs.
type Progress struct {
	Percent         int
	PagesAnalyzed   int
	LinksFound      int
	BrokenLinkCount int
}

// StatusPatch holds optional fields merged during a status transition.
type StatusPatch struct {
	Error       string
	CompletedAt *time.Time
}

// JobParameters captures the per-job knobs requested by the client.
type JobParameters struct {
	TargetURL       string        `json:"url"`
	IncludeExternal bool          `json:"includeExternal"`
	PageTimeout     time.Duration `json:"pageTimeout"`
	OwnerID         string        `json:"userId,omitempty"`
}

// LinkCandidate is a raw reference discovered on the page before resolution.
type LinkCandidate struct {
	RawTarget  string
	AnchorText string
	Kind       ReferenceKind
}

// ResolvedLink is a candidate after resolution, classification and dedup.
// Invalid links are never sent to the network.
type ResolvedLink struct {
	Index          int
	RawTarget      string
	URL            string
	AnchorText     string
	Kind           ReferenceKind
	Classification Classification
	Invalid        bool
	Reason         string
}

// CheckedLink is the verification outcome for one unique URL.
type CheckedLink struct {
	URL            string         `json:"url"`
	Classification Classification `json:"classification"`
	StatusCode     int            `json:"statusCode"`
	ErrorType      string         `json:"errorType,omitempty"`
	ErrorDetail    string         `json:"errorDetail,omitempty"`
	LatencyMs      int64          `json:"latencyMs"`
	AnchorText     string         `json:"anchorText,omitempty"`
	Kind           ReferenceKind  `json:"referenceKind"`
	SourceURL      string         `json:"sourceUrl"`
}

// Broken reports whether the check failed to obtain a 2xx response.
func (c CheckedLink) Broken() bool {
	return c.StatusCode < http.StatusOK || c.StatusCode >= http.StatusMultipleChoices
}

// Summary aggregates the counters of one analysis.
type Summary struct {
	TotalPages     int   `json:"totalPages"`
	TotalLinks     int   `json:"totalLinks"`
	BrokenLinks    int   `json:"brokenLinks"`
	HealthScore    int   `json:"healthScore"`
	AnalysisTimeMs int64 `json:"analysisTimeMs"`
}

// Result is the immutable payload saved when a job completes.
type Result struct {
	AnalysisID      string        `json:"analysisId"`
	TargetURL       string        `json:"url"`
	Summary         Summary       `json:"summary"`
	BrokenLinks     []CheckedLink `json:"brokenLinks"`
	Recommendations []string      `json:"recommendations"`
}

// FetchRequest captures everything needed to fetch the analysed page.
type FetchRequest struct {
	JobID   string
	URL     string
	Timeout time.Duration
}

// FetchResponse is the page returned by a PageFetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Submitted time.Time
}

// Notification is published when a job reaches a terminal state.
type Notification struct {
	AnalysisID  string    `json:"analysisId"`
	Status      Status    `json:"status"`
	TargetURL   string    `json:"url"`
	TotalLinks  int       `json:"totalLinks"`
	BrokenLinks int       `json:"brokenLinks"`
	HealthScore int       `json:"healthScore"`
	ReportURI   string    `json:"reportUri,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Attributes returns message attributes for brokers that support them.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"analysis_id": n.AnalysisID,
		"status":      string(n.Status),
	}
}
