// Package metrics records run statistics on a private Prometheus registry and
// writes them in the node exporter textfile format at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the run metrics. A nil Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	jobs         *prometheus.CounterVec
	contexts     *prometheus.CounterVec
	samples      *prometheus.GaugeVec
	jobDuration  *prometheus.HistogramVec
	hookDuration *prometheus.HistogramVec
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samplepipe_jobs_total",
			Help: "Executor jobs by backend and terminal state",
		}, []string{"backend", "state"}),
		contexts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samplepipe_contexts_total",
			Help: "Runner contexts by runner and outcome",
		}, []string{"runner", "outcome"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "samplepipe_samples",
			Help: "Samples at the end of the run by state",
		}, []string{"state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samplepipe_job_duration_seconds",
			Help:    "Executor job run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"backend"}),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samplepipe_hook_duration_seconds",
			Help:    "Hook run time in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "hook"}),
	}
	c.registry.MustRegister(c.jobs, c.contexts, c.samples, c.jobDuration, c.hookDuration)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveJob records a terminal job.
func (c *Collector) ObserveJob(backend, state string, duration time.Duration) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(backend, state).Inc()
	c.jobDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveContext records the outcome of a runner context.
func (c *Collector) ObserveContext(runner, outcome string) {
	if c == nil {
		return
	}
	c.contexts.WithLabelValues(runner, outcome).Inc()
}

// ObserveHook records one hook invocation.
func (c *Collector) ObserveHook(phase, hook string, duration time.Duration) {
	if c == nil {
		return
	}
	c.hookDuration.WithLabelValues(phase, hook).Observe(duration.Seconds())
}

// SetSamples records the final sample counts.
func (c *Collector) SetSamples(complete, failed int) {
	if c == nil {
		return
	}
	c.samples.WithLabelValues("complete").Set(float64(complete))
	c.samples.WithLabelValues("failed").Set(float64(failed))
}

// WriteTextfile writes every metric to path atomically.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
