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
	bills    *prometheus.CounterVec
	alerts   prometheus.Counter
	drift    prometheus.Gauge
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

// AddGeneratedBills counts bills created by the recurring generator.
func (m *Metrics) AddGeneratedBills(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.bills.WithLabelValues(kind).Add(float64(count))
}

// AddAlerts counts alerts raised by the due-date scan.
func (m *Metrics) AddAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.Add(float64(count))
}

// SetDriftedAccounts records how many accounts the last integrity run found drifted.
func (m *Metrics) SetDriftedAccounts(count int) {
	if m == nil {
		return
	}
	m.drift.Set(float64(count))
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
	bills := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_recurring_bills_total",
		Help: "Bills generated from recurring entries, by kind.",
	}, []string{"kind"})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_ledger_due_alerts_total",
		Help: "Alerts raised by the due-date scan.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_ledger_drifted_accounts",
		Help: "Accounts whose balance disagreed with their movement history on the last integrity run.",
	})
	registerer.MustRegister(runs, failures, duration, bills, alerts, drift)
	return &Metrics{runs: runs, failures: failures, duration: duration, bills: bills, alerts: alerts, drift: drift}
}
