package streaming

import "encoding/json"

// Client operations accepted over the streaming connection.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"

	// Server-initiated operations.
	OpConnect = "connect"
	OpMessage = "message"
	OpError   = "error"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes returned to clients. This is a closed set.
const (
	CodeInvalidJSON       = "INVALID_JSON"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeInvalidOperation  = "INVALID_OPERATION"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodePublishFailed     = "PUBLISH_FAILED"
	CodeSubscriptionError = "SUBSCRIPTION_ERROR"
	CodeTopicNotFound     = "TOPIC_NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Request is the inbound envelope sent by clients. EntityType and EntityID
// are informational for entity-scoped operations; authorization derives from
// the topic itself.
type Request struct {
	Operation  string         `json:"operation"`
	Topic      string         `json:"topic"`
	Data       map[string]any `json:"data,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
}

// Response is the outbound envelope written to clients, both as direct
// replies and as delivered `message` envelopes during fan-out.
type Response struct {
	Status    string          `json:"status"`
	Operation string          `json:"operation"`
	Topic     string          `json:"topic,omitempty"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func errorResponse(code, message string) Response {
	return Response{
		Status:    StatusError,
		Operation: OpError,
		ErrorCode: code,
		Message:   message,
	}
}
