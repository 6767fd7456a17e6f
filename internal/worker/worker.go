// Package worker runs analysis jobs: fetch the page, extract and resolve its
// links, verify them, then persist the result and notify.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/progress"
	"github.com/JakeFAU/broken-link-analyzer/internal/storage"
)

// Progress checkpoints.
const (
	progressStarted   = 5
	progressExtracted = 10
	progressVerified  = 95
	progressDone      = 100
)

// Config controls Worker behavior.
type Config struct {
	PageTimeout time.Duration
	JobTimeout  time.Duration
	MaxLinks    int
	Topic       string
}

// Dependencies are the collaborators a Worker needs. Archiver, Publisher and
// Emitter are optional.
type Dependencies struct {
	Queue     linkcheck.Queue
	Store     linkcheck.JobStore
	Fetcher   linkcheck.PageFetcher
	Extractor linkcheck.Extractor
	Verifier  linkcheck.LinkVerifier
	Archiver  *storage.Archiver
	Publisher linkcheck.Publisher
	Emitter   progress.Emitter
	Clock     linkcheck.Clock
	Registry  *Registry
}

// Worker consumes queue items and executes the analysis pipeline.
type Worker struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Dependencies, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger.Named("worker")}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("queue closed, worker exiting", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.Process(ctx, item)
	}
}

// run carries one job's working state.
type run struct {
	item    linkcheck.QueueItem
	ctx     context.Context
	started time.Time
	logger  *zap.Logger
}

// Process executes one job synchronously and returns its final status.
func (w *Worker) Process(ctx context.Context, item linkcheck.QueueItem) linkcheck.Status {
	// terminal bookkeeping must survive shutdown of ctx
	storeCtx := context.WithoutCancel(ctx)
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("url", item.Params.TargetURL))

	jobCtx, release := w.deps.Registry.Start(ctx, item.JobID, w.cfg.JobTimeout)
	defer release()

	if err := w.deps.Store.UpdateStatus(storeCtx, item.JobID, linkcheck.StatusRunning, linkcheck.StatusPatch{}); err != nil {
		if errors.Is(err, linkcheck.ErrInvalidTransition) {
			logger.Info("skipping job that is no longer pending", zap.Error(err))
		} else {
			logger.Error("mark job running failed", zap.Error(err))
		}
		if job, getErr := w.deps.Store.Get(storeCtx, item.JobID); getErr == nil {
			return job.Status
		}
		return linkcheck.StatusFailed
	}

	r := &run{item: item, ctx: jobCtx, started: w.deps.Clock.Now(), logger: logger}
	logger.Info("analysis started")
	w.emit(r, progress.Event{Stage: progress.StageJobStart, URL: item.Params.TargetURL})
	w.progress(storeCtx, r, linkcheck.Progress{Percent: progressStarted})

	target, err := linkcheck.ParseTarget(item.Params.TargetURL)
	if err != nil {
		return w.fail(storeCtx, r, err.Error())
	}

	pageTimeout := item.Params.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = w.cfg.PageTimeout
	}
	page, err := w.deps.Fetcher.Fetch(jobCtx, linkcheck.FetchRequest{
		JobID:   item.JobID,
		URL:     target.String(),
		Timeout: pageTimeout,
	})
	if err != nil {
		if status, stopped := w.interrupted(storeCtx, r); stopped {
			return status
		}
		return w.fail(storeCtx, r, fmt.Sprintf("fetch page: %v", err))
	}

	base := target
	if final, parseErr := url.Parse(page.URL); parseErr == nil && final.Hostname() != "" {
		base = final
	}
	candidates := w.deps.Extractor.Extract(page.Body)
	links := linkcheck.NewResolver(base, item.Params.IncludeExternal).ResolveAll(candidates)
	if w.cfg.MaxLinks > 0 && len(links) > w.cfg.MaxLinks {
		logger.Warn("link limit reached, truncating",
			zap.Int("found", len(links)),
			zap.Int("limit", w.cfg.MaxLinks))
		links = links[:w.cfg.MaxLinks]
	}
	logger.Debug("page parsed",
		zap.Int("candidates", len(candidates)),
		zap.Int("links", len(links)),
		zap.Duration("fetch_duration", page.Duration))
	w.emit(r, progress.Event{Stage: progress.StagePageFetched, URL: page.URL, StatusCode: page.StatusCode, Dur: page.Duration})
	w.progress(storeCtx, r, linkcheck.Progress{
		Percent:       progressExtracted,
		PagesAnalyzed: 1,
		LinksFound:    len(links),
	})

	var checkedCount, brokenCount int
	checked := w.deps.Verifier.VerifyAll(jobCtx, links, base.String(), func(link linkcheck.CheckedLink) {
		checkedCount++
		if link.Broken() {
			brokenCount++
		}
		w.emit(r, linkEvent(link))
		w.progress(storeCtx, r, linkcheck.Progress{
			Percent:         progressExtracted + (progressVerified-progressExtracted)*checkedCount/len(links),
			PagesAnalyzed:   1,
			LinksFound:      len(links),
			BrokenLinkCount: brokenCount,
		})
	})
	if status, stopped := w.interrupted(storeCtx, r); stopped {
		return status
	}

	completedAt := w.deps.Clock.Now()
	result := linkcheck.BuildResult(item.JobID, base.String(), 1, checked, completedAt.Sub(r.started))
	if err := w.deps.Store.SaveResult(storeCtx, item.JobID, result); err != nil {
		if errors.Is(err, linkcheck.ErrJobNotRunning) {
			return w.settleStopped(storeCtx, r)
		}
		return w.fail(storeCtx, r, fmt.Sprintf("save result: %v", err))
	}

	reportURI, err := w.deps.Archiver.Archive(storeCtx, result, completedAt)
	if err != nil {
		logger.Warn("report archive failed", zap.Error(err))
	}

	w.progress(storeCtx, r, linkcheck.Progress{
		Percent:         progressDone,
		PagesAnalyzed:   1,
		LinksFound:      result.Summary.TotalLinks,
		BrokenLinkCount: result.Summary.BrokenLinks,
	})
	err = w.deps.Store.UpdateStatus(storeCtx, item.JobID, linkcheck.StatusCompleted, linkcheck.StatusPatch{CompletedAt: &completedAt})
	if err != nil {
		logger.Warn("mark job completed failed", zap.Error(err))
		if job, getErr := w.deps.Store.Get(storeCtx, item.JobID); getErr == nil {
			return job.Status
		}
		return linkcheck.StatusFailed
	}

	logger.Info("analysis completed",
		zap.Int("total_links", result.Summary.TotalLinks),
		zap.Int("broken_links", result.Summary.BrokenLinks),
		zap.Int("health_score", result.Summary.HealthScore))
	w.emit(r, progress.Event{Stage: progress.StageJobDone, Dur: completedAt.Sub(r.started)})
	w.notify(storeCtx, r, linkcheck.Notification{
		AnalysisID:  item.JobID,
		Status:      linkcheck.StatusCompleted,
		TargetURL:   item.Params.TargetURL,
		TotalLinks:  result.Summary.TotalLinks,
		BrokenLinks: result.Summary.BrokenLinks,
		HealthScore: result.Summary.HealthScore,
		ReportURI:   reportURI,
		CompletedAt: completedAt,
	})
	return linkcheck.StatusCompleted
}

// interrupted reports whether the job context ended early and settles the
// job accordingly.
func (w *Worker) interrupted(ctx context.Context, r *run) (linkcheck.Status, bool) {
	if r.ctx.Err() == nil {
		return "", false
	}
	cause := context.Cause(r.ctx)
	switch {
	case errors.Is(cause, ErrJobCancelled):
		return w.cancelled(ctx, r), true
	case errors.Is(cause, ErrJobTimeout):
		return w.fail(ctx, r, fmt.Sprintf("analysis timed out after %s", w.cfg.JobTimeout)), true
	default:
		return w.fail(ctx, r, fmt.Sprintf("analysis interrupted: %v", cause)), true
	}
}

func (w *Worker) cancelled(ctx context.Context, r *run) linkcheck.Status {
	r.logger.Info("analysis cancelled")
	w.emit(r, progress.Event{Stage: progress.StageJobCancelled, Dur: w.deps.Clock.Now().Sub(r.started)})
	w.notify(ctx, r, linkcheck.Notification{
		AnalysisID:  r.item.JobID,
		Status:      linkcheck.StatusCancelled,
		TargetURL:   r.item.Params.TargetURL,
		CompletedAt: w.deps.Clock.Now(),
	})
	return linkcheck.StatusCancelled
}

// settleStopped settles a job that left running before its result was saved.
func (w *Worker) settleStopped(ctx context.Context, r *run) linkcheck.Status {
	job, err := w.deps.Store.Get(ctx, r.item.JobID)
	if err != nil {
		r.logger.Error("load stopped job failed", zap.Error(err))
		return linkcheck.StatusFailed
	}
	if job.Status == linkcheck.StatusCancelled {
		return w.cancelled(ctx, r)
	}
	r.logger.Warn("job left running before result was saved", zap.String("status", string(job.Status)))
	return job.Status
}

func (w *Worker) fail(ctx context.Context, r *run, msg string) linkcheck.Status {
	now := w.deps.Clock.Now()
	r.logger.Warn("analysis failed", zap.String("error", msg))
	err := w.deps.Store.UpdateStatus(ctx, r.item.JobID, linkcheck.StatusFailed, linkcheck.StatusPatch{
		Error:       msg,
		CompletedAt: &now,
	})
	if err != nil {
		r.logger.Error("mark job failed failed", zap.Error(err))
		if job, getErr := w.deps.Store.Get(ctx, r.item.JobID); getErr == nil {
			return job.Status
		}
	}
	w.emit(r, progress.Event{Stage: progress.StageJobError, Dur: now.Sub(r.started), Note: msg})
	w.notify(ctx, r, linkcheck.Notification{
		AnalysisID:  r.item.JobID,
		Status:      linkcheck.StatusFailed,
		TargetURL:   r.item.Params.TargetURL,
		Error:       msg,
		CompletedAt: now,
	})
	return linkcheck.StatusFailed
}

func (w *Worker) progress(ctx context.Context, r *run, p linkcheck.Progress) {
	if err := w.deps.Store.UpdateProgress(ctx, r.item.JobID, p); err != nil {
		r.logger.Warn("progress update failed", zap.Int("percent", p.Percent), zap.Error(err))
	}
}

func (w *Worker) emit(r *run, evt progress.Event) {
	evt.JobID = r.item.JobID
	evt.TS = w.deps.Clock.Now()
	w.deps.Emitter.Emit(evt)
}

func (w *Worker) notify(ctx context.Context, r *run, note linkcheck.Notification) {
	if w.deps.Publisher == nil {
		return
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, note); err != nil {
		r.logger.Warn("publish notification failed", zap.Error(err))
	}
}

func linkEvent(link linkcheck.CheckedLink) progress.Event {
	outcome := progress.OutcomeOK
	switch {
	case !link.Broken():
	case link.ErrorType == linkcheck.ErrorTypeTimeout:
		outcome = progress.OutcomeTimeout
	case link.StatusCode == 0:
		outcome = progress.OutcomeError
	default:
		outcome = progress.OutcomeBroken
	}
	site := ""
	if u, err := url.Parse(link.URL); err == nil {
		site = u.Hostname()
	}
	return progress.Event{
		Stage:          progress.StageLinkChecked,
		Site:           site,
		URL:            link.URL,
		Classification: string(link.Classification),
		Outcome:        outcome,
		StatusCode:     link.StatusCode,
		Dur:            time.Duration(link.LatencyMs) * time.Millisecond,
	}
}
