package broker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type subscription struct {
	id      string
	handler MessageHandler
}

// InMemoryBroker is a simple, single-process MessageBroker backed by Go
// channels. It is suitable for development and single-node deployments.
type InMemoryBroker struct {
	mu      sync.RWMutex
	subs    map[string][]subscription // topic -> subscriptions
	topics  map[string]string         // subscription ID -> topic
	closed  bool
	eventCh chan topicMessage
	done    chan struct{}
}

type topicMessage struct {
	topic   string
	payload []byte
}

// NewInMemoryBroker creates and starts an InMemoryBroker. The broker starts a
// background goroutine to dispatch messages; call Close() to stop it.
func NewInMemoryBroker() *InMemoryBroker {
	b := &InMemoryBroker{
		subs:    make(map[string][]subscription),
		topics:  make(map[string]string),
		eventCh: make(chan topicMessage, 1024),
		done:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish enqueues a payload for asynchronous delivery to all subscribers of
// the given topic.
func (b *InMemoryBroker) Publish(topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	b.eventCh <- topicMessage{topic: topic, payload: payload}
	return nil
}

// Subscribe registers a handler for the given topic and returns a
// subscription ID.
func (b *InMemoryBroker) Subscribe(topic string, handler MessageHandler) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("broker is closed")
	}

	id := uuid.New().String()
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.topics[id] = topic
	return id, nil
}

// Unsubscribe removes the subscription with the given ID.
func (b *InMemoryBroker) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.topics[id]
	if !ok {
		return nil
	}
	delete(b.topics, id)

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	return nil
}

// Close stops the dispatch goroutine and prevents further Publish/Subscribe
// calls.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.eventCh)
	// Release the lock before waiting: dispatch needs it to drain the
	// remaining queued messages.
	b.mu.Unlock()

	<-b.done
	return nil
}

// dispatch runs in a goroutine and fans out published messages to the
// matching subscribers.
func (b *InMemoryBroker) dispatch() {
	defer close(b.done)

	for tm := range b.eventCh {
		b.mu.RLock()
		subs := b.subs[tm.topic]
		// Copy the slice so we can release the lock before calling handlers.
		handlers := make([]MessageHandler, len(subs))
		for i, s := range subs {
			handlers[i] = s.handler
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			h(tm.topic, tm.payload)
		}
	}
}
