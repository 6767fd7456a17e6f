package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/broken-link-analyzer/internal/progress"
)

// PrometheusSink exports analysis progress as Prometheus collectors.
type PrometheusSink struct {
	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	jobRuntime   *prometheus.HistogramVec

	linksChecked *prometheus.CounterVec
	linkLatency  *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_jobs_started_total",
			Help: "Analyses that started running.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_jobs_finished_total",
			Help: "Analyses that reached a terminal state, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkcheck_jobs_running",
			Help: "Analyses currently running.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_job_runtime_seconds",
			Help:    "Wall time per finished analysis.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		linksChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_links_checked_total",
			Help: "Checked links by classification and outcome.",
		}, []string{"classification", "outcome"}),
		linkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_link_latency_seconds",
			Help:    "Link check latency by classification.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"classification"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsFinished,
		s.jobsRunning,
		s.jobRuntime,
		s.linksChecked,
		s.linkLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch {
		case evt.Stage == progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.tracker.start(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case evt.Terminal():
			result := resultLabel(evt.Stage)
			s.jobsFinished.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.JobID) {
				s.jobsRunning.Dec()
			}
		case evt.Stage == progress.StageLinkChecked:
			class := evt.Classification
			if class == "" {
				class = "unknown"
			}
			s.linksChecked.WithLabelValues(class, string(evt.Outcome)).Inc()
			if evt.Dur > 0 {
				s.linkLatency.WithLabelValues(class).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageJobDone:
		return "completed"
	case progress.StageJobCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
