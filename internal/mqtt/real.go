package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Will is the last-will message registered with the broker at connect.
type Will struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// TransportOptions configures a RealTransport.
type TransportOptions struct {
	Broker         string // e.g. tcp://192.168.1.200:1883
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Will           Will
}

// RealTransport talks to an actual MQTT broker.
//
// Automatic reconnection is disabled: the Manager owns the retry policy.
type RealTransport struct {
	client         paho.Client
	connectTimeout time.Duration
	publishTimeout time.Duration
	log            *slog.Logger
}

// NewRealTransport creates a transport. No connection is made until Connect.
func NewRealTransport(o TransportOptions, log *slog.Logger) *RealTransport {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(o.ConnectTimeout).
		SetKeepAlive(o.KeepAlive).
		SetOrderMatters(false)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.Will.Topic != "" {
		opts.SetWill(o.Will.Topic, o.Will.Payload, o.Will.QoS, o.Will.Retained)
	}

	t := &RealTransport{
		connectTimeout: o.ConnectTimeout,
		publishTimeout: o.PublishTimeout,
		log:            log,
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.log.Warn("mqtt connection lost", "error", err)
	})
	t.client = paho.NewClient(opts)
	return t
}

// Connect performs one connection attempt.
func (t *RealTransport) Connect() error {
	token := t.client.Connect()
	if !token.WaitTimeout(t.connectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, t.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// IsConnected reports whether the network connection is currently open.
func (t *RealTransport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

// Publish sends a message and waits for the token up to the publish timeout.
func (t *RealTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(t.publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, t.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers a handler for topic.
func (t *RealTransport) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}
	token := t.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(t.publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, t.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Disconnect closes the session, allowing pending work to finish.
func (t *RealTransport) Disconnect() {
	t.client.Disconnect(defaultDisconnectQuiesce)
}
