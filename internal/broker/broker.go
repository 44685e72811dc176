package broker

// MessageHandler is a callback invoked asynchronously, once per message
// delivered on a subscribed topic, with the raw payload.
type MessageHandler func(topic string, payload []byte)

// MessageBroker is the publish/subscribe abstraction over interchangeable
// backing brokers. Implementations include InMemoryBroker (single-process),
// KafkaBroker (log broker), and AMQPBroker (queue broker).
//
// A nil-error Publish means the broker accepted the message for delivery
// (at-least-once); it does not mean any subscriber received it. Delivery
// order across distinct topics is not guaranteed. Within a single topic the
// adapter does not reorder beyond what the backend itself guarantees.
type MessageBroker interface {
	// Publish sends a payload to the given topic. Topics exist implicitly;
	// no separate creation step is needed.
	Publish(topic string, payload []byte) error

	// Subscribe registers a handler for every message published to the
	// topic and returns a subscription ID for Unsubscribe.
	Subscribe(topic string, handler MessageHandler) (string, error)

	// Unsubscribe removes a subscription by ID. Unknown IDs are a no-op.
	Unsubscribe(id string) error

	// Close shuts down the broker, releasing connections, goroutines and
	// channels. After Close returns, Publish and Subscribe must not be
	// called.
	Close() error
}
