package telemetry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	DefaultTopicPrefix = "sdr"
	DefaultQueueSize   = 64

	transmissionTopic = "transmission"
	spectrogramTopic  = "spectrogram"

	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// MQTTConfig configures the MQTT telemetry publisher
type MQTTConfig struct {
	Broker      string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"clientId" json:"clientId"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"password"`
	TopicPrefix string `yaml:"topicPrefix" json:"topicPrefix"`
	QoS         byte   `yaml:"qos" json:"qos"`
	QueueSize   int    `yaml:"queueSize" json:"queueSize"`
}

func (c MQTTConfig) WithDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "radio-scanner-" + uuid.NewString()
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

func (c MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errors.New("telemetry.MQTTConfig: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("telemetry.MQTTConfig: QoS must be 0, 1 or 2: %d given", c.QoS)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("telemetry.MQTTConfig: queue size must not be negative: %d given", c.QueueSize)
	}
	return nil
}

// broker is the part of an MQTT client the publisher uses
type broker interface {
	publish(topic string, qos byte, payload []byte) error
	subscribe(topic string, qos byte, handler func(payload []byte)) error
	disconnect()
}

type subscription struct {
	qos     byte
	handler func(payload []byte)
}

// pahoBroker remembers its subscriptions and restores them on every
// reconnect, since a clean session loses them.
type pahoBroker struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

func (b *pahoBroker) publish(topic string, qos byte, payload []byte) error {
	token := b.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (b *pahoBroker) subscribe(topic string, qos byte, handler func(payload []byte)) error {
	b.mu.Lock()
	b.subs[topic] = subscription{qos, handler}
	b.mu.Unlock()

	return subscribeClient(b.client, topic, subscription{qos, handler})
}

func (b *pahoBroker) resubscribe(client mqtt.Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for topic, sub := range b.subs {
		errs = append(errs, subscribeClient(client, topic, sub))
	}
	return errors.Join(errs...)
}

func subscribeClient(client mqtt.Client, topic string, sub subscription) error {
	token := client.Subscribe(topic, sub.qos, func(_ mqtt.Client, m mqtt.Message) {
		sub.handler(m.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	return token.Error()
}

func (b *pahoBroker) disconnect() {
	b.client.Disconnect(disconnectQuiesce)
}

type message struct {
	topic   string
	payload []byte
}

// MQTTPublisher publishes telemetry payloads to an MQTT broker from a
// background goroutine. A full queue drops new payloads.
type MQTTPublisher struct {
	broker broker
	config MQTTConfig
	logger *slog.Logger

	dropped prometheus.Counter

	mu     sync.RWMutex
	closed bool
	queue  chan message
	done   chan struct{}
}

// WithLogger sets the publisher logger
func WithLogger(logger *slog.Logger) func(p *MQTTPublisher) {
	return func(p *MQTTPublisher) {
		p.logger = logger.With(slog.String("component", "mqtt"))
	}
}

// WithDropCounter counts payloads dropped on a full queue
func WithDropCounter(c prometheus.Counter) func(p *MQTTPublisher) {
	return func(p *MQTTPublisher) {
		p.dropped = c
	}
}

// NewMQTTPublisher connects to the broker and starts the publishing loop.
// The client reconnects on its own after a lost connection.
func NewMQTTPublisher(config MQTTConfig, options ...func(p *MQTTPublisher)) (*MQTTPublisher, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &pahoBroker{subs: make(map[string]subscription)}
	p := newPublisher(b, config, options...)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		p.logger.Info("connected to MQTT broker", slog.String("broker", config.Broker))
		if err := b.resubscribe(c); err != nil {
			p.logger.Error("error restoring MQTT subscriptions", slog.Any("error", err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("MQTT connection lost", slog.Any("error", err))
	})

	client := mqtt.NewClient(opts)
	b.client = client

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("error connecting to MQTT broker %s: %w", config.Broker, err)
	}

	go p.run()

	return p, nil
}

func newPublisher(b broker, config MQTTConfig, options ...func(p *MQTTPublisher)) *MQTTPublisher {
	p := &MQTTPublisher{
		broker: b,
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:  make(chan message, config.QueueSize),
		done:   make(chan struct{}),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Topic returns the topic a payload kind is published on for a device
func (p *MQTTPublisher) Topic(device, kind string) string {
	return p.config.TopicPrefix + "/" + device + "/" + kind
}

func (p *MQTTPublisher) PublishTransmission(device string, t time.Time, r spectrum.FrequencyRange, samples []complex64) {
	p.enqueue(message{p.Topic(device, transmissionTopic), EncodeTransmission(t, r, samples)})
}

func (p *MQTTPublisher) PublishSpectrogram(device string, s spectrum.Spectrogram) {
	p.enqueue(message{p.Topic(device, spectrogramTopic), EncodeSpectrogram(s)})
}

func (p *MQTTPublisher) enqueue(m message) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.queue <- m:
	default:
		if p.dropped != nil {
			p.dropped.Inc()
		}
		p.logger.Warn("telemetry queue is full, dropping payload", slog.String("topic", m.topic))
	}
}

func (p *MQTTPublisher) run() {
	defer close(p.done)

	for m := range p.queue {
		if err := p.broker.publish(m.topic, p.config.QoS, m.payload); err != nil {
			p.logger.Error("error publishing telemetry", slog.String("topic", m.topic), slog.Any("error", err))
		}
	}
}

// Close flushes the queued payloads and disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	p.broker.disconnect()

	return nil
}
