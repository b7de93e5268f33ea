package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks delivery of result events to the broker
type MQTTMetrics struct {
	Connected   prometheus.Gauge
	EventsSent  *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Reconnects  prometheus.Counter
	EventSize   prometheus.Histogram
	PublishWait prometheus.Histogram
	registry    *prometheus.Registry
}

// NewMQTTMetrics creates and registers the result event metrics
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		registry: registry,
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kickspeed_mqtt_connected",
			Help: "1 while the result event broker connection is up",
		}),
		EventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kickspeed_mqtt_events_sent_total",
			Help: "Result events acknowledged by the broker",
		}, []string{"topic"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kickspeed_mqtt_failures_total",
			Help: "Broker failures by operation",
		}, []string{"operation"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kickspeed_mqtt_reconnects_total",
			Help: "Reconnect attempts after a lost broker connection",
		}),
		EventSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kickspeed_mqtt_event_size_bytes",
			Help:    "Encoded size of published result events",
			Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}),
		PublishWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kickspeed_mqtt_publish_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// ConnectionChanged records the broker connection state
func (m *MQTTMetrics) ConnectionChanged(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

// Reconnecting counts a reconnect attempt
func (m *MQTTMetrics) Reconnecting() {
	m.Reconnects.Inc()
}

// Published records an acknowledged event
func (m *MQTTMetrics) Published(topic string, sizeBytes int, wait time.Duration) {
	m.EventsSent.WithLabelValues(topic).Inc()
	m.EventSize.Observe(float64(sizeBytes))
	m.PublishWait.Observe(wait.Seconds())
}

// Failed counts a broker failure by operation
func (m *MQTTMetrics) Failed(operation string) {
	m.Failures.WithLabelValues(operation).Inc()
}

// Describe implements prometheus.Collector
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Connected.Describe(ch)
	m.EventsSent.Describe(ch)
	m.Failures.Describe(ch)
	m.Reconnects.Describe(ch)
	m.EventSize.Describe(ch)
	m.PublishWait.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Connected.Collect(ch)
	m.EventsSent.Collect(ch)
	m.Failures.Collect(ch)
	m.Reconnects.Collect(ch)
	m.EventSize.Collect(ch)
	m.PublishWait.Collect(ch)
}
