// Package metrics exposes Prometheus instrumentation for the visualization
// job lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons recorded on visualizer_jobs_failed_total.
const (
	FailReasonValidation  = "validation"
	FailReasonProvider    = "provider"
	FailReasonOverloaded  = "overloaded"
	FailReasonRateLimited = "rate_limited"
	FailReasonInternal    = "internal"
)

// Collector bundles the job lifecycle metrics. All instruments are
// registered on the Registerer passed to NewCollector, so tests can use
// isolated registries.
type Collector struct {
	jobsCreated   prometheus.Counter
	jobAttempts   prometheus.Counter
	jobsSucceeded prometheus.Counter
	jobsFailed    *prometheus.CounterVec
	jobsExpired   prometheus.Counter
	jobsInFlight  prometheus.Gauge
	genDuration   prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visualizer_jobs_created_total",
			Help: "Visualization jobs accepted for processing.",
		}),
		jobAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visualizer_job_attempts_total",
			Help: "Generation attempts across all jobs, including retries.",
		}),
		jobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visualizer_jobs_succeeded_total",
			Help: "Jobs that reached the succeeded state.",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visualizer_jobs_failed_total",
			Help: "Jobs that reached the failed state, by reason.",
		}, []string{"reason"}),
		jobsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visualizer_jobs_expired_total",
			Help: "Job records purged after their TTL elapsed.",
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "visualizer_jobs_in_flight",
			Help: "Attempt loops currently running.",
		}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "visualizer_generation_duration_seconds",
			Help:    "Wall time of successful generation attempts.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(
		c.jobsCreated,
		c.jobAttempts,
		c.jobsSucceeded,
		c.jobsFailed,
		c.jobsExpired,
		c.jobsInFlight,
		c.genDuration,
	)
	return c
}

func (c *Collector) JobCreated()     { c.jobsCreated.Inc() }
func (c *Collector) AttemptStarted() { c.jobAttempts.Inc() }
func (c *Collector) JobStarted()     { c.jobsInFlight.Inc() }
func (c *Collector) JobFinished()    { c.jobsInFlight.Dec() }

func (c *Collector) JobSucceeded(d time.Duration) {
	c.jobsSucceeded.Inc()
	c.genDuration.Observe(d.Seconds())
}

func (c *Collector) JobFailed(reason string) {
	c.jobsFailed.WithLabelValues(reason).Inc()
}

func (c *Collector) JobsExpired(n int) {
	c.jobsExpired.Add(float64(n))
}
