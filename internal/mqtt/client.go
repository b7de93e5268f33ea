package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	mu             sync.Mutex
	metrics        Metrics
	log            logger.Logger
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, m Metrics) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("MQTT broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	def := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = def.DisconnectTimeout
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = def.MaxReconnect
	}
	if m == nil {
		m = noopMetrics{}
	}

	return &client{config: cfg, metrics: m, log: GetLogger()}, nil
}

// Connect resolves the broker host and then connects. Lost connections are
// re-established by paho in the background.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Hostname() == "" {
		return c.connectionError(fmt.Errorf("invalid broker URL %q", c.config.Broker), "parse_broker_url")
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return c.connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), "resolve_broker")
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnect)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.metrics.Failed("connect")
		return c.connectionError(err, "connect")
	}

	c.metrics.ConnectionChanged(true)
	return nil
}

// Publish sends payload to topic, or to the configured topic when topic is empty
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if topic == "" {
		topic = c.config.Topic
	}
	if !c.isConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		c.metrics.Failed("publish")
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Context("payload_size", len(payload)).
			Build()
	}

	c.metrics.Published(topic, len(payload), time.Since(start))
	c.log.Debug("published message", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *client) isConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.ConnectionChanged(false)
	}
}

func (c *client) onConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.ConnectionChanged(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.String("broker", c.config.Broker), logger.Error(err))
	c.metrics.ConnectionChanged(false)
	c.metrics.Failed("connection_lost")
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	c.metrics.Reconnecting()
}

func (c *client) connectionError(err error, operation string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("operation", operation).
		Context("broker", c.config.Broker).
		Build()
}

// waitToken waits for token completion, the timeout or ctx, whichever is first
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
