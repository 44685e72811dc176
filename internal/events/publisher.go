// Package events publishes canonical entity mutation events to the message
// broker. The persistence layer invokes the publisher after each committed
// create/update/delete; subscribers receive the events on the
// entity.<type>.<id> topic.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lumenforge/entitystream/internal/broker"
	"github.com/lumenforge/entitystream/internal/topic"
)

// Entity event types.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EntityEvent is the canonical payload describing a single entity mutation.
// Data holds the entity's public fields at the time of the event and is null
// for deletions. Timestamp is seconds since epoch.
type EntityEvent struct {
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Timestamp  float64        `json:"timestamp"`
	Data       map[string]any `json:"data"`
}

// Publisher builds and publishes entity events. A nil streamable set means
// every entity type is streamable.
type Publisher struct {
	broker     broker.MessageBroker
	streamable map[string]bool
	now        func() time.Time
}

func NewPublisher(b broker.MessageBroker, streamable map[string]bool) *Publisher {
	return &Publisher{
		broker:     b,
		streamable: streamable,
		now:        time.Now,
	}
}

// EntityMutated publishes one event for a committed mutation. The returned
// error is advisory: the mutation has already committed, so callers must
// treat a failure as a warning, never roll back. Publication is attempted
// exactly once; there are no retries.
func (p *Publisher) EntityMutated(entityType, entityID, eventType string, snapshot map[string]any) error {
	switch eventType {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}

	normalized := strings.ToLower(entityType)
	if p.streamable != nil && !p.streamable[normalized] {
		return nil
	}

	event := EntityEvent{
		EventType:  eventType,
		EntityType: normalized,
		EntityID:   entityID,
		Timestamp:  float64(p.now().UnixNano()) / float64(time.Second),
		Data:       snapshot,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal entity event: %w", err)
	}

	topicName := topic.Entity(entityType, entityID)
	if err := p.broker.Publish(topicName, payload); err != nil {
		log.Printf("events: WARNING: failed to publish %s event for %s/%s: %v", eventType, normalized, entityID, err)
		return fmt.Errorf("publish entity event: %w", err)
	}
	return nil
}
