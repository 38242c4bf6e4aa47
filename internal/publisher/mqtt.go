package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/internal/classify"
	"github.com/jgoulah/gridview/internal/config"
	"github.com/jgoulah/gridview/internal/view"
)

// Client is the subset of the MQTT client the publisher uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher pushes dashboard snapshots to an MQTT broker for map widgets and
// home automation dashboards
type Publisher struct {
	client      Client
	topicPrefix string
	logger      *zap.Logger
}

// New connects to the broker configured in cfg
func New(cfg config.MQTTConfig, topicPrefix string, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT publishing is not enabled in config")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	// Configure MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("gridview-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return NewWithClient(client, topicPrefix, logger), nil
}

// NewWithClient wraps an already connected client
func NewWithClient(client Client, topicPrefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger.Named("publisher"),
	}
}

// Message is one retained MQTT message
type Message struct {
	Topic   string
	Payload []byte
}

// Messages builds the messages describing a snapshot: the full snapshot as JSON
// and the number of overloaded points of the hour
func (p *Publisher) Messages(snap view.Snapshot) ([]Message, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	overloaded := 0
	for _, pt := range snap.Points {
		if classify.Classify(pt).Overloaded() {
			overloaded++
		}
	}

	return []Message{
		{Topic: p.topicPrefix + "/snapshot", Payload: body},
		{Topic: p.topicPrefix + "/overloaded", Payload: []byte(strconv.Itoa(overloaded))},
		{Topic: p.topicPrefix + "/mode", Payload: []byte(snap.Mode)},
	}, nil
}

// Publish sends a snapshot to the broker as retained messages
func (p *Publisher) Publish(snap view.Snapshot) error {
	msgs, err := p.Messages(snap)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		token := p.client.Publish(m.Topic, 1, true, m.Payload)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("publishing to %s: timed out", m.Topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", m.Topic, err)
		}
		p.logger.Debug("published", zap.String("topic", m.Topic), zap.Int("bytes", len(m.Payload)))
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
