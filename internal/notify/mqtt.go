package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/privacy"
)

// MQTTConfig holds the broker settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // events go to <Topic>/<entry key>
	Timeout  time.Duration
}

// MQTTPublisher publishes entry events to an MQTT broker
type MQTTPublisher struct {
	config MQTTConfig
	client mqtt.Client
	mu     sync.Mutex

	// newClient builds the paho client, replaced in tests
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTTPublisher returns an unconnected publisher
func NewMQTTPublisher(cfg MQTTConfig) *MQTTPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTPublisher{config: cfg, newClient: mqtt.NewClient}
}

// Connect resolves the broker host and establishes the connection
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := url.Parse(p.config.Broker)
	if err != nil {
		return errors.New(privacy.WrapError(err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_broker_url").
			Build()
	}
	broker := privacy.RedactURL(p.config.Broker)

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Category(errors.CategoryNetwork).
				Context("operation", "resolve_broker").
				Context("broker", broker).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(p.config.Timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		GetLogger().Warn("connection to MQTT broker lost",
			logger.String("broker", broker),
			logger.Error(privacy.WrapError(err)))
	})

	p.client = p.newClient(opts)
	token := p.client.Connect()
	if err := waitToken(ctx, token, p.config.Timeout); err != nil {
		return errors.New(privacy.WrapError(err)).
			Category(errors.CategoryMQTTConnection).
			Context("broker", broker).
			Build()
	}

	GetLogger().Info("connected to MQTT broker", logger.String("broker", broker))
	return nil
}

// PublishEntry publishes ev as JSON to <topic>/<entry key>
func (p *MQTTPublisher) PublishEntry(ctx context.Context, ev EntryEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).Category(errors.CategoryMQTTPublish).Context("entry", ev.Key).Build()
	}
	return p.Publish(ctx, p.config.Topic+"/"+ev.Key, payload)
}

// Publish sends payload to topic with QoS 1
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Category(errors.CategoryMQTTConnection).
			Context("topic", topic).
			Build()
	}

	token := p.client.Publish(topic, 1, false, payload)
	if err := waitToken(ctx, token, p.config.Timeout); err != nil {
		return errors.New(err).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Context("payload_size", len(payload)).
			Build()
	}

	GetLogger().Trace("message published", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

// Disconnect closes the broker connection, waiting up to 250ms for in-flight work
func (p *MQTTPublisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// waitToken waits for a paho token, the context or the timeout, whichever comes first
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Newf("mqtt operation timed out after %s", timeout).
			Category(errors.CategoryTimeout).
			Build()
	}
}
