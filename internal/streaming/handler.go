package streaming

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lumenforge/entitystream/internal/auth"
	"github.com/lumenforge/entitystream/internal/broker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     CheckOrigin,
}

// WSHandler upgrades HTTP connections to WebSocket and spawns the read/write
// pumps for the new streaming connection.
type WSHandler struct {
	registry   *Registry
	broker     broker.MessageBroker
	jwtService *auth.JWTService
}

func NewWSHandler(registry *Registry, b broker.MessageBroker, jwtService *auth.JWTService) *WSHandler {
	return &WSHandler{registry: registry, broker: b, jwtService: jwtService}
}

// RegisterRoutes wires the streaming WebSocket endpoint.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/streaming", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS upgrades an HTTP GET /ws/streaming request to a WebSocket
// connection. Authentication is performed before the upgrade by reading the
// JWT from:
//  1. The `token` query parameter, or
//  2. The `Authorization: Bearer <token>` header.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}

	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already wrote the error response.
		return
	}

	client := NewClient(h.registry, h.broker, conn, auth.PrincipalFromClaims(claims))
	h.registry.Register(client)
	client.sendConnected()

	log.Printf("streaming: user %s connected", claims.UserID)

	go client.WritePump()
	go client.ReadPump()
}
