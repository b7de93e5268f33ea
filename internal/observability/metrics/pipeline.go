package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for analysis runs
type PipelineMetrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	StepDuration       *prometheus.HistogramVec
	StepErrors         *prometheus.CounterVec
	InferenceFallbacks prometheus.Counter
	InFlight           prometheus.Gauge
	registry           *prometheus.Registry
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kickspeed_pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"}) // status: success, no_frames, processing_failed

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kickspeed_pipeline_run_duration_seconds",
		Help:    "Wall time of complete pipeline runs",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12),
	})

	m.StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kickspeed_pipeline_step_duration_seconds",
		Help:    "Time taken by individual pipeline steps",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12*2),
	}, []string{"step"})

	m.StepErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kickspeed_pipeline_step_errors_total",
		Help: "Total number of failed pipeline steps",
	}, []string{"step"})

	m.InferenceFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kickspeed_inference_fallbacks_total",
		Help: "Runs that used the default estimate because inference failed",
	})

	m.InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kickspeed_pipeline_in_flight",
		Help: "Pipeline runs currently executing",
	})
}

// RecordRun records one finished run
func (m *PipelineMetrics) RecordRun(status string, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// ObserveStep records the duration of a step and whether it failed
func (m *PipelineMetrics) ObserveStep(step string, elapsed time.Duration, err error) {
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		m.StepErrors.WithLabelValues(step).Inc()
	}
}

// IncInferenceFallback counts a default estimate substitution
func (m *PipelineMetrics) IncInferenceFallback() {
	m.InferenceFallbacks.Inc()
}

// RunStarted increments the in-flight gauge
func (m *PipelineMetrics) RunStarted() {
	m.InFlight.Inc()
}

// RunFinished decrements the in-flight gauge
func (m *PipelineMetrics) RunFinished() {
	m.InFlight.Dec()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RunsTotal.Collect(ch)
	m.RunDuration.Collect(ch)
	m.StepDuration.Collect(ch)
	m.StepErrors.Collect(ch)
	m.InferenceFallbacks.Collect(ch)
	m.InFlight.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RunsTotal.Describe(ch)
	m.RunDuration.Describe(ch)
	m.StepDuration.Describe(ch)
	m.StepErrors.Describe(ch)
	m.InferenceFallbacks.Describe(ch)
	m.InFlight.Describe(ch)
}
