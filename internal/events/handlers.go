package events

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumenforge/entitystream/internal/auth"
)

// Handlers exposes the HTTP ingest endpoint the persistence collaborator
// calls after each committed mutation.
type Handlers struct {
	publisher *Publisher
}

func NewHandlers(publisher *Publisher) *Handlers {
	return &Handlers{publisher: publisher}
}

// RegisterRoutes wires the ingest endpoint. The router must already apply
// the bearer-auth middleware; PublishMutation additionally requires an
// administrator principal.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/events/mutations", h.PublishMutation).Methods(http.MethodPost)
}

type mutationRequest struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EventType  string         `json:"event_type"`
	Data       map[string]any `json:"data"`
}

// PublishMutation accepts a committed mutation and publishes the entity
// event. A broker failure yields 200 with a warning body rather than an
// error status: the mutation itself has already committed and must not be
// reported as failed.
func (h *Handlers) PublishMutation(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || !claims.Admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "administrator privilege required"})
		return
	}

	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.EntityType == "" || req.EntityID == "" || req.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity_type, entity_id and event_type are required"})
		return
	}

	if err := h.publisher.EntityMutated(req.EntityType, req.EntityID, req.EventType, req.Data); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "warning",
			"message": "mutation accepted but event publication failed",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
