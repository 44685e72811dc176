package streaming

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/lumenforge/entitystream/internal/broker"
)

// Registry owns the authoritative mapping from topic to subscribed
// connections and from connection to its topics. It keeps a single broker
// subscription per topic: the broker is subscribed when a topic gains its
// first local subscriber and unsubscribed when it loses its last.
//
// Two locks with distinct roles: mu guards the subscription maps and is
// never held across broker calls, so fan-out is never blocked on broker
// I/O; brokerMu serializes the first-subscriber/last-subscriber decisions
// and the broker subscribe/unsubscribe calls they trigger.
type Registry struct {
	broker broker.MessageBroker

	mu     sync.Mutex
	topics map[string]map[*Client]struct{}
	conns  map[*Client]map[string]struct{}

	brokerMu   sync.Mutex
	brokerSubs map[string]string // topic -> broker subscription ID
}

// NewRegistry creates a Registry that fans broker messages out through the
// given MessageBroker.
func NewRegistry(b broker.MessageBroker) *Registry {
	return &Registry{
		broker:     b,
		topics:     make(map[string]map[*Client]struct{}),
		conns:      make(map[*Client]map[string]struct{}),
		brokerSubs: make(map[string]string),
	}
}

// Register adds a connection with no subscriptions.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		r.conns[c] = make(map[string]struct{})
	}
	log.Printf("streaming: connection %s registered (user=%s)", c.ID, c.Principal.ID)
}

// Deregister removes a connection and cascades removal of all its
// subscriptions. It is safe to call more than once and safe to call
// concurrently with FanOut: an overlapping fan-out either delivers before
// removal or skips the connection, never both.
func (r *Registry) Deregister(c *Client) {
	r.brokerMu.Lock()
	defer r.brokerMu.Unlock()

	r.mu.Lock()
	topics, ok := r.conns[c]
	var emptied []string
	if ok {
		for t := range topics {
			if set, ok := r.topics[t]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(r.topics, t)
					emptied = append(emptied, t)
				}
			}
		}
		delete(r.conns, c)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	for _, t := range emptied {
		r.dropBrokerSub(t)
	}

	c.shutdown()
	log.Printf("streaming: connection %s deregistered", c.ID)
}

// AddSubscription subscribes the connection to the topic. The first local
// subscriber of a topic triggers a broker subscription; a broker failure
// rolls the registry entry back so the maps and broker state stay
// consistent.
func (r *Registry) AddSubscription(c *Client, topicName string) error {
	r.brokerMu.Lock()
	defer r.brokerMu.Unlock()

	r.mu.Lock()
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("connection %s is not registered", c.ID)
	}
	r.conns[c][topicName] = struct{}{}
	set, ok := r.topics[topicName]
	if !ok {
		set = make(map[*Client]struct{})
		r.topics[topicName] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1
	r.mu.Unlock()

	if !first {
		return nil
	}

	id, err := r.broker.Subscribe(topicName, r.FanOut)
	if err != nil {
		r.mu.Lock()
		delete(r.conns[c], topicName)
		if set, ok := r.topics[topicName]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.topics, topicName)
			}
		}
		r.mu.Unlock()
		return fmt.Errorf("broker subscribe for %s: %w", topicName, err)
	}
	r.brokerSubs[topicName] = id
	return nil
}

// RemoveSubscription unsubscribes the connection from the topic. Removing a
// subscription that does not exist is a no-op. The topic's last local
// subscriber triggers a broker unsubscribe.
func (r *Registry) RemoveSubscription(c *Client, topicName string) {
	r.brokerMu.Lock()
	defer r.brokerMu.Unlock()

	r.mu.Lock()
	if topics, ok := r.conns[c]; ok {
		delete(topics, topicName)
	}
	last := false
	if set, ok := r.topics[topicName]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.topics, topicName)
			last = true
		}
	}
	r.mu.Unlock()

	if last {
		r.dropBrokerSub(topicName)
	}
}

// Subscribers returns the number of local connections subscribed to a topic.
func (r *Registry) Subscribers(topicName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topicName])
}

// FanOut wraps a broker payload in a `message` envelope and enqueues it to
// every connection currently subscribed to the topic. A connection whose
// send queue is full is skipped and the failure logged; delivery to the
// remaining subscribers continues. FanOut is registered as the broker
// MessageHandler for each subscribed topic.
func (r *Registry) FanOut(topicName string, payload []byte) {
	data, err := json.Marshal(Response{
		Status:    StatusSuccess,
		Operation: OpMessage,
		Topic:     topicName,
		Data:      json.RawMessage(payload),
	})
	if err != nil {
		log.Printf("streaming: failed to marshal message envelope for %s: %v", topicName, err)
		return
	}

	r.mu.Lock()
	targets := make([]*Client, 0, len(r.topics[topicName]))
	for c := range r.topics[topicName] {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	failed := 0
	for _, c := range targets {
		if !c.trySend(data) {
			failed++
			log.Printf("streaming: dropped message for connection %s on %s (send queue full or closed)", c.ID, topicName)
		}
	}
	if failed > 0 {
		log.Printf("streaming: fan-out on %s delivered to %d/%d subscribers", topicName, len(targets)-failed, len(targets))
	}
}

// dropBrokerSub removes the broker subscription for a topic, if any. Caller
// must hold brokerMu.
func (r *Registry) dropBrokerSub(topicName string) {
	id, ok := r.brokerSubs[topicName]
	if !ok {
		return
	}
	delete(r.brokerSubs, topicName)
	if err := r.broker.Unsubscribe(id); err != nil {
		log.Printf("streaming: broker unsubscribe for %s failed: %v", topicName, err)
	}
}
