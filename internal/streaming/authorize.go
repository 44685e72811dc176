package streaming

import (
	"strings"

	"github.com/lumenforge/entitystream/internal/auth"
	"github.com/lumenforge/entitystream/internal/topic"
)

// Operation is the intent being authorized against a topic.
type Operation string

const (
	OperationSubscribe Operation = "subscribe"
	OperationPublish   Operation = "publish"
)

// Authorize decides whether the principal may perform op on the topic. It is
// a pure function; rules are evaluated in order and the first match wins:
//
//  1. Administrators are allowed unconditionally.
//  2. Entity topics require the `read_<type>` privilege to subscribe and
//     `update_<type>` to publish.
//  3. User topics are restricted to the owning user.
//  4. Public topics are subscribe-only broadcast channels. No privilege
//     grants public publish; pending a product decision this stays denied
//     for everyone but administrators.
//  5. Everything else is denied.
func Authorize(p *auth.Principal, t topic.Topic, op Operation) bool {
	if p.Admin {
		return true
	}

	switch t.Kind {
	case topic.KindEntity:
		entityType := strings.ToLower(t.EntityType)
		switch op {
		case OperationSubscribe:
			return p.HasPrivilege("read_" + entityType)
		case OperationPublish:
			return p.HasPrivilege("update_" + entityType)
		}
		return false
	case topic.KindUser:
		return p.ID == t.OwnerID
	case topic.KindPublic:
		return op == OperationSubscribe
	default:
		return false
	}
}
