package bus

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 3 * time.Second
)

// MQTTBus is the broker-backed Bus used in deployments. Dashboards subscribe
// to the same broker over websockets, so topic names are the wire contract.
type MQTTBus struct {
	client mqtt.Client
	logger zerolog.Logger
}

// NewMQTT connects to the broker at brokerURL (e.g. "tcp://mqtt:1883") and
// returns a ready bus.
func NewMQTT(brokerURL, clientID string, logger zerolog.Logger) (*MQTTBus, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", brokerURL).Msg("connected to broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("broker connect to %s: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker connect to %s: %w", brokerURL, err)
	}

	return &MQTTBus{client: client, logger: logger}, nil
}

// Publish sends payload to topic with the given QoS. The call honors ctx and
// an internal publish timeout; the broker retries delivery for QoS 1.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	token := b.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish %s: timeout", topic)
	}
}

// Subscribe registers handler for all messages on topic.
func (b *MQTTBus) Subscribe(topic string, qos byte, handler Handler) error {
	token := b.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the client currently holds a broker connection.
func (b *MQTTBus) Connected() bool {
	return b.client.IsConnectionOpen()
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(uint(publishTimeout / time.Millisecond))
	return nil
}

var _ Bus = (*MQTTBus)(nil)
