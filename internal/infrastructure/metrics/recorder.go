// Package metrics exposes run outcomes as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// Recorder turns finished run summaries into counters, a duration histogram and
// last-run gauges. All collectors are registered on the registry passed to NewRecorder.
type Recorder struct {
	runs        *prometheus.CounterVec
	upserts     prometheus.Counter
	events      *prometheus.CounterVec
	skipped     prometheus.Counter
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

var _ ports.RunObserver = (*Recorder)(nil)

// NewRecorder builds and registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheltersync_runs_total",
			Help: "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheltersync_upserts_total",
			Help: "Animal records written.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheltersync_history_events_total",
			Help: "History events by result (logged or suppressed as duplicate).",
		}, []string{"result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sheltersync_records_skipped_total",
			Help: "Source records skipped as malformed.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheltersync_transitions_total",
			Help: "Inferred lifecycle transitions.",
		}, []string{"transition"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sheltersync_failures_total",
			Help: "Run failures by stage and kind.",
		}, []string{"stage", "kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sheltersync_run_duration_seconds",
			Help:    "Wall time of reconciliation runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sheltersync_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sheltersync_last_clean_run_timestamp_seconds",
			Help: "Unix time the last run without failures finished.",
		}),
	}
	reg.MustRegister(r.runs, r.upserts, r.events, r.skipped, r.transitions, r.failures,
		r.duration, r.lastRun, r.lastSuccess)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(s domain.RunSummary) {
	outcome := "clean"
	switch {
	case s.Cancelled:
		outcome = "cancelled"
	case len(s.Errors) > 0:
		outcome = "partial"
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.upserts.Add(float64(s.Upserted))
	r.events.WithLabelValues("logged").Add(float64(s.EventsLogged))
	r.events.WithLabelValues("suppressed").Add(float64(s.EventsSuppressed))
	r.skipped.Add(float64(s.Skipped))
	r.transitions.WithLabelValues("arrived").Add(float64(len(s.Arrived)))
	r.transitions.WithLabelValues("adopted").Add(float64(len(s.Adopted)))
	r.transitions.WithLabelValues("returned").Add(float64(len(s.Returned)))
	for _, f := range s.Errors {
		r.failures.WithLabelValues(f.Stage, string(f.Kind)).Inc()
	}
	if d := s.Duration(); d > 0 {
		r.duration.Observe(d.Seconds())
	}
	if !s.FinishedAt.IsZero() {
		r.lastRun.Set(float64(s.FinishedAt.Unix()))
		if outcome == "clean" {
			r.lastSuccess.Set(float64(s.FinishedAt.Unix()))
		}
	}
}
