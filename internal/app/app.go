// Package app assembles the analysis service from settings: result store,
// leaderboard, media, inference, pipeline and the optional event and alert
// sinks.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/diskmanager"
	"github.com/kickspeed/kickspeed/internal/inference"
	"github.com/kickspeed/kickspeed/internal/leaderboard"
	"github.com/kickspeed/kickspeed/internal/logger"
	"github.com/kickspeed/kickspeed/internal/media"
	"github.com/kickspeed/kickspeed/internal/mqtt"
	"github.com/kickspeed/kickspeed/internal/notification"
	"github.com/kickspeed/kickspeed/internal/observability"
	"github.com/kickspeed/kickspeed/internal/pipeline"
)

const mqttConnectTimeout = 10 * time.Second

// App holds the wired service components
type App struct {
	Settings     *conf.Settings
	Metrics      *observability.Metrics
	Store        *datastore.FileStore
	Leaderboard  *leaderboard.Engine
	Orchestrator *pipeline.Orchestrator

	mqttClient mqtt.Client
	alerter    *notification.Alerter
	log        logger.Logger
}

// New wires the service. publicBaseURL prefixes published video and QR URLs.
func New(ctx context.Context, settings *conf.Settings, publicBaseURL string) (*App, error) {
	a := &App{Settings: settings, log: GetLogger()}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	a.Metrics = m

	store, err := datastore.NewFileStore(settings.Paths.Outputs, settings.Cache.TTL)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.Leaderboard = leaderboard.NewEngine(store, leaderboard.WithObserver(m.Leaderboard))

	composer := media.NewComposer(
		media.NewFFmpeg(settings.Media.FFmpegPath, settings.Media.StepTimeout),
		&settings.Media,
	)
	analyzer := inference.NewClient(&settings.Inference, nil)
	if settings.Inference.APIKey == "" {
		a.log.Warn("inference API key is not set, every run will use the default estimate")
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(m.Pipeline),
		pipeline.WithDiskChecker(diskmanager.NewChecker(settings.Pipeline.MinFreeDiskMB, m.DiskManager)),
	}

	if publisher := a.setupMQTT(ctx); publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	if alerter := a.setupAlerts(); alerter != nil {
		opts = append(opts, pipeline.WithAlerter(alerter))
	}

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.Config{
		PublicDir:          settings.Paths.Public,
		PublicBaseURL:      publicBaseURL,
		MaxInferenceFrames: settings.Inference.MaxFrames,
		InferenceTimeout:   settings.Inference.Timeout,
		QRSize:             settings.Media.QRSize,
		MaxConcurrent:      settings.Pipeline.MaxConcurrent,
	}, composer, analyzer, store, opts...)

	return a, nil
}

// setupMQTT connects the result event publisher. A broker that is down at
// startup is retried by the client in the background.
func (a *App) setupMQTT(ctx context.Context) *mqtt.Publisher {
	s := a.Settings.MQTT
	if !s.Enabled {
		return nil
	}

	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	cfg.QoS = s.QoS
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}

	client, err := mqtt.NewClient(cfg, a.Metrics.MQTT)
	if err != nil {
		a.log.Warn("MQTT disabled", logger.Error(err))
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		a.log.Warn("MQTT broker unreachable, result events will be retried on reconnect",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
	}

	a.mqttClient = client
	return mqtt.NewPublisher(client, cfg.Topic)
}

func (a *App) setupAlerts() *notification.Alerter {
	s := a.Settings.Notification
	if !s.Enabled || len(s.URLs) == 0 {
		return nil
	}

	provider := notification.NewShoutrrrProvider("shoutrrr", true, s.URLs, nil, s.Timeout)
	if err := provider.ValidateConfig(); err != nil {
		a.log.Warn("failure alerts disabled", logger.Error(err))
		return nil
	}

	a.alerter = notification.NewAlerter(provider, notification.DefaultDedupWindow, s.Timeout)
	return a.alerter
}

// Close flushes pending alerts and disconnects from the broker
func (a *App) Close() {
	if a.alerter != nil {
		a.alerter.Close()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
}

// GetLogger returns the app module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
