package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus used for unit tests and local prototyping.
// Handlers run synchronously on the publishing goroutine, which keeps test
// assertions deterministic. It also records every publish so tests can
// inspect delivery order per topic.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	records  map[string][]Message
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		records:  make(map[string][]Message),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte, _ byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return context.Canceled
	}
	b.records[topic] = append(b.records[topic], msg)
	hs := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range hs {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, _ byte, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Messages returns the payloads published to topic, in publish order.
func (b *MemoryBus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.records[topic]...)
}

// Topics returns every topic that has seen at least one publish.
func (b *MemoryBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.records))
	for t := range b.records {
		out = append(out, t)
	}
	return out
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ Bus = (*MemoryBus)(nil)
