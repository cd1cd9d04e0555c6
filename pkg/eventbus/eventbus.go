// Package eventbus publishes and consumes execution lifecycle events over
// watermill transports. The engine and trigger manager only see the narrow
// events.Publisher interface; subscribers attach typed handlers per event
// type.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/strandkit/strand/pkg/events"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event any) error

// Bus is a watermill-backed event bus. It satisfies events.Publisher.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu       sync.RWMutex
	handlers map[events.EventType]Handler
}

func NewBus(publisher message.Publisher, subscriber message.Subscriber) *Bus {
	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		handlers:   make(map[events.EventType]Handler),
	}
}

// Publish serializes the event and sends it on the topic. The event key
// lands in message metadata so partitioned transports can preserve
// per-execution ordering.
func (b *Bus) Publish(_ context.Context, topic string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventKeyMetadataKey, event.GetKey())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return b.publisher.Publish(topic, msg)
}

// Handle registers the handler for one event type. Must be called before
// Subscribe.
func (b *Bus) Handle(eventType events.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = handler
}

// Subscribe consumes the topic until the context is cancelled. Events
// without a registered handler are acked and dropped; handler errors nack
// so the transport can redeliver.
func (b *Bus) Subscribe(ctx context.Context, topic string) error {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.consume(ctx, msg)
		}
	}()

	return nil
}

func (b *Bus) consume(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	b.mu.RLock()
	handler, exists := b.handlers[eventType]
	b.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	event := newEvent(eventType)
	if event == nil {
		msg.Nack()

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		msg.Nack()

		return
	}

	if err := handler(ctx, event); err != nil {
		msg.Nack()

		return
	}

	msg.Ack()
}

// newEvent returns a zero value of the concrete struct for a wire event
// type, or nil for unknown types.
func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
		events.ExecutionFailedEvent,
		events.ExecutionCancelledEvent,
		events.ExecutionSuspendedEvent,
		events.ExecutionResumedEvent:
		return &events.ExecutionStateChanged{}
	case events.NodeFinishedEvent, events.NodeFailedEvent:
		return &events.NodeFinished{}
	case events.TriggerFiredEvent, events.TriggerDeduplicatedEvent:
		return &events.TriggerFired{}
	default:
		return nil
	}
}

func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}

	return b.subscriber.Close()
}
