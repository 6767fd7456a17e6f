// Package server assembles the analysis service from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/api"
	"github.com/JakeFAU/broken-link-analyzer/internal/clock/system"
	"github.com/JakeFAU/broken-link-analyzer/internal/config"
	"github.com/JakeFAU/broken-link-analyzer/internal/dispatcher"
	"github.com/JakeFAU/broken-link-analyzer/internal/extract"
	collyfetcher "github.com/JakeFAU/broken-link-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/broken-link-analyzer/internal/id/uuid"
	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/metrics"
	"github.com/JakeFAU/broken-link-analyzer/internal/progress"
	progresssinks "github.com/JakeFAU/broken-link-analyzer/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/broken-link-analyzer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/broken-link-analyzer/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/broken-link-analyzer/internal/queue/memory"
	linkstorage "github.com/JakeFAU/broken-link-analyzer/internal/storage"
	gcsstorage "github.com/JakeFAU/broken-link-analyzer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/broken-link-analyzer/internal/storage/local"
	memorystorage "github.com/JakeFAU/broken-link-analyzer/internal/storage/memory"
	memorystore "github.com/JakeFAU/broken-link-analyzer/internal/store/memory"
	pgstore "github.com/JakeFAU/broken-link-analyzer/internal/store/postgres"
	sqlitestore "github.com/JakeFAU/broken-link-analyzer/internal/store/sqlite"
	"github.com/JakeFAU/broken-link-analyzer/internal/verifier"
	"github.com/JakeFAU/broken-link-analyzer/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	apiServer   *api.Server
	dispatch    *dispatcher.Dispatcher
	workers     []*worker.Worker
	queue       *queuememory.Queue
	jobStore    linkcheck.JobStore
	progressHub *progress.Hub
	closers     []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("pubsub", cfg.PubSub.Backend))

	var err error
	if app.jobStore, err = setupStore(ctx, app); err != nil {
		return nil, err
	}
	archiver, err := setupArchive(ctx, app)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	emitter, err := setupProgress(app)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	setupDispatcher(app, archiver, publisher, emitter)

	app.apiServer = api.NewServer(
		app.jobStore,
		app.dispatch,
		cfg,
		logger,
		api.WithReadiness("store", storeProbe(app.jobStore)),
	)
	metrics.RegisterQueueDepth(app.queue.Len)
	return app, nil
}

// Handler exposes the HTTP routes.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and processes jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")

	workCtx, stopWork := context.WithCancel(ctx)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", len(a.workers)))
		a.dispatch.Run(workCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	stopWork()
	<-dispatchDone

	if err := a.Close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Analyze runs one analysis synchronously on the calling goroutine. The job is
// recorded in the configured store like any other.
func (a *App) Analyze(ctx context.Context, params linkcheck.JobParameters) (linkcheck.Job, *linkcheck.Result, error) {
	if params.PageTimeout <= 0 {
		params.PageTimeout = a.cfg.Analyzer.PageTimeout()
	}
	if limit := a.cfg.Analyzer.MaxPageTimeout(); limit > 0 && params.PageTimeout > limit {
		params.PageTimeout = limit
	}
	job, err := a.dispatch.Admit(ctx, params)
	if err != nil {
		return linkcheck.Job{}, nil, err
	}
	params.TargetURL = job.TargetURL
	a.workers[0].Process(ctx, linkcheck.QueueItem{JobID: job.ID, Params: params, Submitted: job.StartedAt})

	job, err = a.jobStore.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return linkcheck.Job{}, nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status != linkcheck.StatusCompleted {
		return job, nil, nil
	}
	result, err := a.jobStore.GetResult(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return job, nil, fmt.Errorf("load result: %w", err)
	}
	return job, &result, nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	if a.progressHub != nil {
		if n := a.progressHub.Dropped(); n > 0 {
			a.logger.Warn("progress events dropped before shutdown", zap.Int64("dropped", n))
		}
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	err := a.closeAll()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.closer.Close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: c})
}

func setupStore(ctx context.Context, app *App) (linkcheck.JobStore, error) {
	switch app.cfg.Store.Backend {
	case config.BackendPostgres:
		pg := app.cfg.Store.Postgres
		store, err := pgstore.NewJobStore(ctx, pgstore.Config{
			DSN:             pg.DSN,
			Table:           pg.Table,
			MaxConns:        int32(pg.MaxConns),
			MinConns:        int32(pg.MinConns),
			MaxConnLifetime: time.Duration(pg.MaxConnLifetimeMinutes) * time.Minute,
			Migrate:         pg.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres job store init failed: %w", err)
		}
		app.onClose("postgres job store", store)
		app.logger.Info("using postgres job store", zap.String("table", pg.Table))
		return store, nil
	case config.BackendSQLite:
		path := app.cfg.Store.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		store, err := sqlitestore.NewJobStore(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("sqlite job store init failed: %w", err)
		}
		app.onClose("sqlite job store", store)
		app.logger.Info("using sqlite job store", zap.String("path", path))
		return store, nil
	default:
		app.logger.Info("using in-memory job store")
		return memorystore.NewJobStore(), nil
	}
}

func setupArchive(ctx context.Context, app *App) (*linkstorage.Archiver, error) {
	var blobStore linkcheck.BlobStore
	switch app.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		gcs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       app.cfg.Archive.GCSBucket,
			CacheControl: app.cfg.Archive.GCSCacheControl,
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.onClose("gcs blob store", gcs)
		blobStore = gcs
		app.logger.Info("archiving reports to GCS", zap.String("bucket", app.cfg.Archive.GCSBucket))
	case config.BackendLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobStore = local
		app.logger.Info("archiving reports locally", zap.String("path", app.cfg.Archive.BaseDir))
	case config.BackendMemory:
		blobStore = memorystorage.NewBlobStore()
		app.logger.Info("archiving reports in memory")
	default:
		app.logger.Info("report archive disabled")
	}
	return linkstorage.NewArchiver(blobStore, app.cfg.Archive.Prefix), nil
}

func setupPublisher(ctx context.Context, app *App) (linkcheck.Publisher, error) {
	switch app.cfg.PubSub.Backend {
	case config.BackendGCP:
		publisher, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.onClose("pubsub publisher", publisher)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName))
		return publisher, nil
	case config.BackendMemory:
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(app.logger, memorypublisher.DefaultRetain), nil
	default:
		app.logger.Info("completion notifications disabled")
		return nil, nil
	}
}

func setupProgress(app *App) (progress.Emitter, error) {
	pc := app.cfg.Progress
	if !pc.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	var sinkList []progress.Sink
	if pc.LogSink {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if pc.PrometheusSink {
		promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("prometheus progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.MaxBatchEvents,
		MaxBatchWait:   time.Duration(pc.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(pc.SinkTimeoutMs) * time.Millisecond,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait))
	return app.progressHub, nil
}

func setupDispatcher(
	app *App,
	archiver *linkstorage.Archiver,
	publisher linkcheck.Publisher,
	emitter progress.Emitter,
) {
	ac := app.cfg.Analyzer
	vc := app.cfg.Verifier
	clock := system.New()
	registry := worker.NewRegistry()
	app.queue = queuememory.NewQueue(ac.QueueDepth)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    ac.UserAgent,
		Timeout:      ac.MaxPageTimeout(),
		MaxBodyBytes: ac.MaxBodyBytes,
	})
	linkVerifier := verifier.New(verifier.Config{
		Timeout:              time.Duration(vc.TimeoutSeconds) * time.Second,
		Concurrency:          vc.Concurrency,
		MaxRetries:           vc.MaxRetries,
		BackoffInitial:       time.Duration(vc.BackoffInitialMs) * time.Millisecond,
		BackoffMax:           time.Duration(vc.BackoffMaxMs) * time.Millisecond,
		RatePerHost:          vc.RatePerHost,
		Burst:                vc.Burst,
		BlockPrivateNetworks: vc.BlockPrivateNetworks,
		GetFallback:          vc.GetFallback,
		UserAgent:            ac.UserAgent,
	}, app.logger)

	workerCfg := worker.Config{
		PageTimeout: ac.PageTimeout(),
		JobTimeout:  ac.JobTimeout(),
		MaxLinks:    ac.MaxLinks,
		Topic:       app.cfg.PubSub.TopicName,
	}
	app.logger.Info("worker config",
		zap.Int("workers", ac.Workers),
		zap.Duration("page_timeout", workerCfg.PageTimeout),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
		zap.Int("max_links", workerCfg.MaxLinks),
		zap.Int("verifier_concurrency", vc.Concurrency))

	deps := worker.Dependencies{
		Queue:     app.queue,
		Store:     app.jobStore,
		Fetcher:   fetcher,
		Extractor: extract.New(app.logger),
		Verifier:  linkVerifier,
		Archiver:  archiver,
		Publisher: publisher,
		Emitter:   emitter,
		Clock:     clock,
		Registry:  registry,
	}
	workers := max(ac.Workers, 1)
	app.workers = make([]*worker.Worker, 0, workers)
	for range workers {
		app.workers = append(app.workers, worker.New(deps, workerCfg, app.logger))
	}
	app.dispatch = dispatcher.New(app.queue, app.workers, app.jobStore, registry, uuid.New(), clock, app.logger)
}

// storeProbe reports the store ready when a lookup round-trips.
func storeProbe(store linkcheck.JobStore) api.ReadinessCheck {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, "readiness-probe")
		if err == nil || errors.Is(err, linkcheck.ErrJobNotFound) {
			return nil
		}
		return err
	}
}
