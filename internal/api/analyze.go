package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/dispatcher"
	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/metrics"
)

// Status values reported to API clients. Pending jobs read as running and
// failed jobs as error.
const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusError     = "error"
	statusCancelled = "cancelled"
)

const enqueueTimeout = 5 * time.Second

type analyzeRequest struct {
	URL             string `json:"url"`
	IncludeExternal *bool  `json:"includeExternal"`
	// Timeout is the page fetch budget in milliseconds.
	Timeout *int64 `json:"timeout"`
	UserID  string `json:"userId"`
}

type analyzeResponse struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
}

type statusResponse struct {
	AnalysisID    string `json:"analysisId"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	PagesAnalyzed int    `json:"pagesAnalyzed"`
	LinksFound    int    `json:"linksFound"`
	BrokenLinks   int    `json:"brokenLinks"`
}

type errorStatusResponse struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type historyEntry struct {
	AnalysisID  string     `json:"analysisId"`
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	LinksFound  int        `json:"linksFound"`
	BrokenLinks int        `json:"brokenLinks"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type historyResponse struct {
	Analyses []historyEntry `json:"analyses"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
	Total    int            `json:"total"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	params, err := s.decodeAnalyzeRequest(w, r)
	if err != nil {
		metrics.ObserveSubmission(metrics.SubmissionInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	job, err := s.dispatcher.Submit(ctx, params)
	switch {
	case err == nil:
	case errors.Is(err, linkcheck.ErrInvalidURL):
		metrics.ObserveSubmission(metrics.SubmissionInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, dispatcher.ErrQueueUnavailable):
		metrics.ObserveSubmission(metrics.SubmissionRejected)
		s.logger.Warn("analysis rejected", zap.String("analysis_id", job.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "analysis queue is full, retry later")
		return
	default:
		metrics.ObserveSubmission(metrics.SubmissionRejected)
		s.logger.Error("submit analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}

	metrics.ObserveSubmission(metrics.SubmissionAccepted)
	writeJSON(w, http.StatusAccepted, analyzeResponse{AnalysisID: job.ID, Status: statusRunning})
}

func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (linkcheck.JobParameters, error) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		return linkcheck.JobParameters{}, errors.New("invalid JSON")
	}
	if req.URL == "" {
		return linkcheck.JobParameters{}, errors.New("url is required")
	}
	if _, err := linkcheck.ParseTarget(req.URL); err != nil {
		return linkcheck.JobParameters{}, err
	}

	pageTimeout := s.cfg.Analyzer.PageTimeout()
	if req.Timeout != nil {
		if *req.Timeout <= 0 {
			return linkcheck.JobParameters{}, errors.New("timeout must be a positive number of milliseconds")
		}
		pageTimeout = time.Duration(*req.Timeout) * time.Millisecond
	}
	if maxTimeout := s.cfg.Analyzer.MaxPageTimeout(); maxTimeout > 0 && pageTimeout > maxTimeout {
		pageTimeout = maxTimeout
	}

	return linkcheck.JobParameters{
		TargetURL:       req.URL,
		IncludeExternal: boolOrDefault(req.IncludeExternal, s.cfg.Analyzer.IncludeExternalDefault),
		PageTimeout:     pageTimeout,
		OwnerID:         req.UserID,
	}, nil
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysisId")
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}

	switch job.Status {
	case linkcheck.StatusFailed:
		writeJSON(w, http.StatusOK, errorStatusResponse{AnalysisID: job.ID, Status: statusError, Error: job.Error})
	case linkcheck.StatusCancelled:
		writeJSON(w, http.StatusOK, errorStatusResponse{AnalysisID: job.ID, Status: statusCancelled})
	default:
		progress := job.Progress
		if job.Status == linkcheck.StatusCompleted {
			progress = 100
		}
		writeJSON(w, http.StatusOK, statusResponse{
			AnalysisID:    job.ID,
			Status:        apiStatus(job.Status),
			Progress:      progress,
			PagesAnalyzed: job.PagesAnalyzed,
			LinksFound:    job.LinksFound,
			BrokenLinks:   job.BrokenLinkCount,
		})
	}
}

func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysisId")
	job, err := s.dispatcher.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		metrics.ObserveCancellation()
		writeJSON(w, http.StatusOK, analyzeResponse{AnalysisID: job.ID, Status: statusCancelled})
	case errors.Is(err, linkcheck.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorStatusResponse{
			AnalysisID: job.ID,
			Status:     apiStatus(job.Status),
			Error:      fmt.Sprintf("analysis already %s", job.Status),
		})
	default:
		s.writeLookupError(w, jobID, err)
	}
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "analysisId")
	result, err := s.jobStore.GetResult(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, linkcheck.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, "results not available")
			return
		}
		s.writeLookupError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := intParam(query.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := intParam(query.Get("limit"), linkcheck.DefaultPageSize)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	_, limit = linkcheck.PageBounds(page, limit)

	jobs, total, err := s.jobStore.ListHistory(r.Context(), query.Get("userId"), page, limit)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	entries := make([]historyEntry, 0, len(jobs))
	for _, job := range jobs {
		entries = append(entries, historyEntry{
			AnalysisID:  job.ID,
			URL:         job.TargetURL,
			Status:      apiStatus(job.Status),
			Progress:    job.Progress,
			LinksFound:  job.LinksFound,
			BrokenLinks: job.BrokenLinkCount,
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
			Error:       job.Error,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{Analyses: entries, Page: page, Limit: limit, Total: total})
}

func (s *Server) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, linkcheck.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	s.logger.Error("job lookup failed", zap.String("analysis_id", jobID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load analysis")
}

func apiStatus(status linkcheck.Status) string {
	switch status {
	case linkcheck.StatusCompleted:
		return statusCompleted
	case linkcheck.StatusFailed:
		return statusError
	case linkcheck.StatusCancelled:
		return statusCancelled
	default:
		return statusRunning
	}
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return v, nil
}
