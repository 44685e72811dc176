// Package topic implements the dot-segmented topic grammar used for
// streaming subscriptions:
//
//	entity.<entity_type>            all events for an entity type
//	entity.<entity_type>.<id>       events for a single entity
//	user.<user_id>.<suffix>         per-user channel
//	public.<suffix>                 public broadcast channel
//
// Topics are never created explicitly; a topic exists the moment something
// subscribes or publishes to its string form.
package topic

import (
	"fmt"
	"strings"
)

// Kind identifies the reserved topic prefix.
type Kind string

const (
	KindEntity Kind = "entity"
	KindUser   Kind = "user"
	KindPublic Kind = "public"
)

// Topic is the parsed form of a topic string.
type Topic struct {
	Raw  string
	Kind Kind

	// EntityType and EntityID are set for entity topics. EntityID is empty
	// for the type-wide form entity.<entity_type>.
	EntityType string
	EntityID   string

	// OwnerID is set for user topics.
	OwnerID string

	// Suffix is set for user and public topics.
	Suffix string
}

// Entity builds the canonical topic string for a single entity.
func Entity(entityType, entityID string) string {
	return "entity." + strings.ToLower(entityType) + "." + entityID
}

// Parse validates raw against the topic grammar. Segment content is opaque
// except that no segment may be empty and entity_type, user id, and suffix
// segments contain no dots (enforced by the segment-count checks).
func Parse(raw string) (Topic, error) {
	segments := strings.Split(raw, ".")
	for _, s := range segments {
		if s == "" {
			return Topic{}, fmt.Errorf("topic %q has an empty segment", raw)
		}
	}

	t := Topic{Raw: raw}
	switch Kind(segments[0]) {
	case KindEntity:
		if len(segments) != 2 && len(segments) != 3 {
			return Topic{}, fmt.Errorf("entity topic %q must have 2 or 3 segments", raw)
		}
		t.Kind = KindEntity
		t.EntityType = segments[1]
		if len(segments) == 3 {
			t.EntityID = segments[2]
		}
	case KindUser:
		if len(segments) != 3 {
			return Topic{}, fmt.Errorf("user topic %q must have 3 segments", raw)
		}
		t.Kind = KindUser
		t.OwnerID = segments[1]
		t.Suffix = segments[2]
	case KindPublic:
		if len(segments) != 2 {
			return Topic{}, fmt.Errorf("public topic %q must have 2 segments", raw)
		}
		t.Kind = KindPublic
		t.Suffix = segments[1]
	default:
		return Topic{}, fmt.Errorf("topic %q has unknown prefix %q", raw, segments[0])
	}
	return t, nil
}
