// Package bus provides the publish/subscribe transport between the
// orchestrator, team dashboards and auxiliary service workers.
package bus

import "context"

// QoS levels as used on the wire. AtLeastOnce is used for control commands
// and inject deliveries, BestEffort for timer ticks.
const (
	BestEffort  byte = 0
	AtLeastOnce byte = 1
)

// Message is a single payload received from a subscription.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler consumes messages delivered to a subscription.
type Handler func(msg Message)

// Bus is the transport contract the engine depends on. Publish failures are
// reported to the caller but are never fatal to exercise execution.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte, handler Handler) error
	Close() error
}
