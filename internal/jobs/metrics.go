package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background job timing and drift.
type Metrics struct {
	duration *prometheus.HistogramVec
	drift    *prometheus.CounterVec
	healed   *prometheus.CounterVec
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

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run duration and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddDrift counts records found with drifted aggregates and how many were healed.
func (m *Metrics) AddDrift(scope string, found, healed int) {
	if m == nil {
		return
	}
	if found > 0 {
		m.drift.WithLabelValues(scope).Add(float64(found))
	}
	if healed > 0 {
		m.healed.WithLabelValues(scope).Add(float64(healed))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_integrity_drift_total",
		Help: "Records whose cached aggregates disagreed with their detail rows.",
	}, []string{"scope"})
	healed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_integrity_healed_total",
		Help: "Drifted records recomputed by the integrity scan.",
	}, []string{"scope"})
	registerer.MustRegister(duration, drift, healed)
	return &Metrics{duration: duration, drift: drift, healed: healed}
}
