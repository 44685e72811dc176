package streaming

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumenforge/entitystream/internal/auth"
	"github.com/lumenforge/entitystream/internal/broker"
	"github.com/lumenforge/entitystream/internal/topic"
)

const (
	// writeWait is the maximum time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the maximum time to wait for a pong reply from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize is the maximum inbound envelope size in bytes.
	maxMessageSize = 4096
	// sendQueueSize bounds the per-connection outbound queue. A full queue
	// marks the connection as a slow consumer and messages to it are
	// dropped rather than stalling delivery to other connections.
	sendQueueSize = 256
)

// Client is one live streaming connection: an authenticated principal, the
// WebSocket transport, and a bounded outbound queue. Inbound envelopes are
// processed sequentially by ReadPump; different connections are processed
// concurrently with each other.
type Client struct {
	ID        string
	Principal *auth.Principal

	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once

	registry *Registry
	broker   broker.MessageBroker
}

// NewClient creates a Client for an upgraded connection. Call
// Registry.Register before starting the pumps.
func NewClient(registry *Registry, b broker.MessageBroker, conn *websocket.Conn, principal *auth.Principal) *Client {
	return &Client{
		ID:        uuid.New().String(),
		Principal: principal,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		registry:  registry,
		broker:    b,
	}
}

// shutdown marks the connection closed. The send channel itself is never
// closed: a fan-out racing a deregistration may still enqueue a message,
// which is then simply never written.
func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// trySend enqueues data for the write pump without blocking. It reports
// false if the connection is shut down or the queue is full.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendResponse(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("streaming: connection %s failed to marshal response: %v", c.ID, err)
		return
	}
	if !c.trySend(data) {
		log.Printf("streaming: connection %s dropped %s response (send queue full or closed)", c.ID, resp.Operation)
	}
}

// sendConnected emits the connect acknowledgement that marks the connection
// open.
func (c *Client) sendConnected() {
	c.sendResponse(Response{
		Status:    StatusSuccess,
		Operation: OpConnect,
		Message:   fmt.Sprintf("Connected to streaming service as %s", c.Principal.Username),
	})
}

// handleMessage processes one inbound envelope. Protocol errors are reported
// to this connection only and never close it.
func (c *Client) handleMessage(raw []byte) {
	if !json.Valid(raw) {
		c.sendResponse(errorResponse(CodeInvalidJSON, "invalid JSON"))
		return
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendResponse(errorResponse(CodeValidationError, "malformed streaming request"))
		return
	}
	if req.Operation == "" || req.Topic == "" {
		c.sendResponse(errorResponse(CodeValidationError, "operation and topic are required"))
		return
	}

	switch req.Operation {
	case OpSubscribe:
		c.handleSubscribe(req)
	case OpUnsubscribe:
		c.handleUnsubscribe(req)
	case OpPublish:
		c.handlePublish(req)
	default:
		c.sendResponse(errorResponse(CodeInvalidOperation, fmt.Sprintf("unknown operation: %s", req.Operation)))
	}
}

func (c *Client) handleSubscribe(req Request) {
	t, err := topic.Parse(req.Topic)
	if err != nil {
		c.sendResponse(errorResponse(CodeTopicNotFound, fmt.Sprintf("invalid topic: %s", req.Topic)))
		return
	}

	if !Authorize(c.Principal, t, OperationSubscribe) {
		c.sendResponse(errorResponse(CodePermissionDenied, fmt.Sprintf("no permission to subscribe to topic: %s", req.Topic)))
		return
	}

	if err := c.registry.AddSubscription(c, req.Topic); err != nil {
		log.Printf("streaming: connection %s subscribe to %s failed: %v", c.ID, req.Topic, err)
		c.sendResponse(errorResponse(CodeSubscriptionError, fmt.Sprintf("subscription to topic %s failed", req.Topic)))
		return
	}

	c.sendResponse(Response{
		Status:    StatusSuccess,
		Operation: OpSubscribe,
		Topic:     req.Topic,
		Message:   fmt.Sprintf("Subscribed to topic: %s", req.Topic),
	})
	log.Printf("streaming: connection %s (user=%s) subscribed to %s", c.ID, c.Principal.ID, req.Topic)
}

// handleUnsubscribe succeeds whether or not the subscription existed.
func (c *Client) handleUnsubscribe(req Request) {
	c.registry.RemoveSubscription(c, req.Topic)

	c.sendResponse(Response{
		Status:    StatusSuccess,
		Operation: OpUnsubscribe,
		Topic:     req.Topic,
		Message:   fmt.Sprintf("Unsubscribed from topic: %s", req.Topic),
	})
	log.Printf("streaming: connection %s (user=%s) unsubscribed from %s", c.ID, c.Principal.ID, req.Topic)
}

func (c *Client) handlePublish(req Request) {
	t, err := topic.Parse(req.Topic)
	if err != nil {
		c.sendResponse(errorResponse(CodeTopicNotFound, fmt.Sprintf("invalid topic: %s", req.Topic)))
		return
	}

	if !Authorize(c.Principal, t, OperationPublish) {
		c.sendResponse(errorResponse(CodePermissionDenied, fmt.Sprintf("no permission to publish to topic: %s", req.Topic)))
		return
	}

	data := req.Data
	if data == nil {
		data = make(map[string]any)
	}
	data["user_id"] = c.Principal.ID
	data["username"] = c.Principal.Username

	payload, err := json.Marshal(data)
	if err != nil {
		c.sendResponse(errorResponse(CodeInternalError, "internal server error"))
		return
	}

	if err := c.broker.Publish(req.Topic, payload); err != nil {
		log.Printf("streaming: connection %s publish to %s failed: %v", c.ID, req.Topic, err)
		c.sendResponse(errorResponse(CodePublishFailed, fmt.Sprintf("failed to publish to topic: %s", req.Topic)))
		return
	}

	c.sendResponse(Response{
		Status:    StatusSuccess,
		Operation: OpPublish,
		Topic:     req.Topic,
		Message:   fmt.Sprintf("Published to topic: %s", req.Topic),
	})
	log.Printf("streaming: connection %s (user=%s) published to %s", c.ID, c.Principal.ID, req.Topic)
}

// ReadPump pumps envelopes from the WebSocket connection through the
// protocol engine. It runs in its own goroutine per connection; envelope
// processing is sequential, so no two envelopes from the same connection
// are handled concurrently. On exit the connection is deregistered and all
// its subscriptions removed.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Deregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("streaming: connection %s read error: %v", c.ID, err)
			}
			break
		}
		c.handleMessage(msg)
	}
}

// WritePump pumps queued envelopes to the WebSocket connection. It runs in
// its own goroutine per connection; all writes happen here.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
