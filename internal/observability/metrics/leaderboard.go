package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LeaderboardMetrics contains Prometheus metrics for daily ranking scans
type LeaderboardMetrics struct {
	Queries        prometheus.Counter
	ScanDuration   prometheus.Histogram
	RecordsScanned prometheus.Counter
	RecordsSkipped prometheus.Counter
	LastDayEntries prometheus.Gauge
	registry       *prometheus.Registry
}

// NewLeaderboardMetrics creates and registers leaderboard metrics
func NewLeaderboardMetrics(registry *prometheus.Registry) (*LeaderboardMetrics, error) {
	m := &LeaderboardMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register leaderboard metrics: %w", err)
	}
	return m, nil
}

func (m *LeaderboardMetrics) initMetrics() {
	m.Queries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kickspeed_leaderboard_queries_total",
		Help: "Total number of daily ranking computations",
	})

	m.ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kickspeed_leaderboard_scan_duration_seconds",
		Help:    "Time taken to scan the result store for one ranking",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.RecordsScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kickspeed_leaderboard_records_scanned_total",
		Help: "Records read while computing rankings",
	})

	m.RecordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kickspeed_leaderboard_records_skipped_total",
		Help: "Unreadable records skipped while computing rankings",
	})

	m.LastDayEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kickspeed_leaderboard_last_day_entries",
		Help: "Ranked entries found by the most recent ranking",
	})
}

// ObserveScan implements the leaderboard observer
func (m *LeaderboardMetrics) ObserveScan(scanned, skipped, matched int, elapsed time.Duration) {
	m.Queries.Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
	m.RecordsScanned.Add(float64(scanned))
	m.RecordsSkipped.Add(float64(skipped))
	m.LastDayEntries.Set(float64(matched))
}

// Collect implements the prometheus.Collector interface.
func (m *LeaderboardMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Queries
	ch <- m.ScanDuration
	ch <- m.RecordsScanned
	ch <- m.RecordsSkipped
	ch <- m.LastDayEntries
}

// Describe implements the prometheus.Collector interface.
func (m *LeaderboardMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Queries.Desc()
	ch <- m.ScanDuration.Desc()
	ch <- m.RecordsScanned.Desc()
	ch <- m.RecordsSkipped.Desc()
	ch <- m.LastDayEntries.Desc()
}
