// Package mqtt publishes analysis result events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/kickspeed/kickspeed/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Metrics receives client activity. *metrics.MQTTMetrics satisfies it.
// Failed receives "connect", "publish" or "connection_lost".
type Metrics interface {
	ConnectionChanged(connected bool)
	Reconnecting()
	Published(topic string, sizeBytes int, wait time.Duration)
	Failed(operation string)
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Default topic for publishing messages
	Retain   bool   // true to retain messages at the broker
	QoS      byte
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnect      time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "kickspeed",
		Topic:             "kickspeed/results",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnect:      5 * time.Minute,
	}
}

// GetLogger returns the mqtt module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}

type noopMetrics struct{}

func (noopMetrics) ConnectionChanged(bool)               {}
func (noopMetrics) Reconnecting()                        {}
func (noopMetrics) Published(string, int, time.Duration) {}
func (noopMetrics) Failed(string)                        {}
