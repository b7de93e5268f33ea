package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for storage space checks
type DiskManagerMetrics struct {
	FreeBytes       *prometheus.GaugeVec
	UsedPercent     *prometheus.GaugeVec
	LowSpaceWarning *prometheus.CounterVec
	CheckErrors     prometheus.Counter
	registry        *prometheus.Registry
}

// NewDiskManagerMetrics creates and registers disk metrics
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register disk manager metrics: %w", err)
	}
	return m, nil
}

func (m *DiskManagerMetrics) initMetrics() {
	m.FreeBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diskmanager_free_bytes",
		Help: "Free bytes on the filesystem holding a data directory",
	}, []string{"path"})

	m.UsedPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diskmanager_used_percent",
		Help: "Used percentage of the filesystem holding a data directory",
	}, []string{"path"})

	m.LowSpaceWarning = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diskmanager_low_space_warnings_total",
		Help: "Checks that found less free space than the configured minimum",
	}, []string{"path"})

	m.CheckErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diskmanager_check_errors_total",
		Help: "Disk usage checks that failed",
	})
}

// RecordUsage records a successful usage check
func (m *DiskManagerMetrics) RecordUsage(path string, free uint64, usedPercent float64, low bool) {
	m.FreeBytes.WithLabelValues(path).Set(float64(free))
	m.UsedPercent.WithLabelValues(path).Set(usedPercent)
	if low {
		m.LowSpaceWarning.WithLabelValues(path).Inc()
	}
}

// RecordError counts a failed usage check
func (m *DiskManagerMetrics) RecordError() {
	m.CheckErrors.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FreeBytes.Collect(ch)
	m.UsedPercent.Collect(ch)
	m.LowSpaceWarning.Collect(ch)
	m.CheckErrors.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FreeBytes.Describe(ch)
	m.UsedPercent.Describe(ch)
	m.LowSpaceWarning.Describe(ch)
	m.CheckErrors.Describe(ch)
}
