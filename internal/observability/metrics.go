// Package observability provides Prometheus metrics for the kickspeed service.
// Error telemetry is handled by the errors package.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kickspeed/kickspeed/internal/logger"
	"github.com/kickspeed/kickspeed/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Pipeline    *metrics.PipelineMetrics
	HTTP        *metrics.HTTPMetrics
	Leaderboard *metrics.LeaderboardMetrics
	MQTT        *metrics.MQTTMetrics
	DiskManager *metrics.DiskManagerMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry,
// initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	leaderboardMetrics, err := metrics.NewLeaderboardMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaderboard metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	diskManagerMetrics, err := metrics.NewDiskManagerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create DiskManager metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Pipeline:    pipelineMetrics,
		HTTP:        httpMetrics,
		Leaderboard: leaderboardMetrics,
		MQTT:        mqttMetrics,
		DiskManager: diskManagerMetrics,
	}, nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// promErrorLog adapts the module logger to promhttp.Logger
type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	log().Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
