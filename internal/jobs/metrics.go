package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec

	balanced   prometheus.Gauge
	unbalanced prometheus.Gauge
	broken     prometheus.Gauge
	lastRun    prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveIntegrity publishes the outcome of a ledger integrity check.
func (m *Metrics) ObserveIntegrity(balanced bool, unbalanced, brokenReversals int, at time.Time) {
	if m == nil {
		return
	}
	if balanced {
		m.balanced.Set(1)
	} else {
		m.balanced.Set(0)
	}
	m.unbalanced.Set(float64(unbalanced))
	m.broken.Set(float64(brokenReversals))
	m.lastRun.Set(float64(at.Unix()))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	balanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_balanced",
		Help: "1 when global debits equal global credits at the last check.",
	})
	unbalanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_unbalanced_entries",
		Help: "Journal entries whose debits differ from their credits.",
	})
	broken := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_broken_reversals",
		Help: "Voided entries not netted out by their reversal.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_last_run_timestamp_seconds",
		Help: "Unix time of the last completed integrity check.",
	})
	registerer.MustRegister(runs, failures, duration, balanced, unbalanced, broken, lastRun)
	return &Metrics{
		runs:       runs,
		failures:   failures,
		duration:   duration,
		balanced:   balanced,
		unbalanced: unbalanced,
		broken:     broken,
		lastRun:    lastRun,
	}
}
