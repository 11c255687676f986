package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/smokestack-project/smokestack/pkg/metrics"
)

// ConnectionManager manages WebSocket watch connections. Each connection is
// bound to an authenticated user and streams that user's subscribed events;
// subscriptions themselves are managed over REST, so the socket carries no
// subscribe commands.
type ConnectionManager struct {
	bus *Bus

	// Active connections: subscriber_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
type Connection struct {
	User string
	Conn *websocket.Conn
	sub  *Subscriber

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a new ConnectionManager fanning out from bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection
// for the given user. Called by the WebSocket HTTP handler after upgrade.
// Blocks until the connection closes or the subscriber is evicted.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, user string) {
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		User:   user,
		Conn:   conn,
		sub:    m.bus.Subscribe(user),
		ctx:    ctx,
		cancel: cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.sub.ID,
		"user":          user,
	})

	// Write pump: drains the subscriber queue until close or eviction.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.sub.Events() {
			m.sendJSON(c, map[string]any{"type": "event", "event": ev})
		}
		if m.bus.Evicted(c.sub) {
			slog.Warn("Closing connection of slow consumer",
				"connection_id", c.sub.ID, "user", user)
			m.sendJSON(c, map[string]string{
				"type":    "error",
				"message": "slow_consumer: event queue overflowed, reconnect and replay history",
			})
			_ = conn.Close(websocket.StatusPolicyViolation, "slow_consumer")
		}
		cancel()
	}()

	// Read loop: process client messages until connection closes
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Closing the subscription ends the write pump.
			m.bus.Unsubscribe(c.sub)
			<-done
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", c.sub.ID, "error", err)
			continue
		}

		if msg.Action == "ping" {
			m.sendJSON(c, map[string]string{"type": "pong"})
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.sub.ID] = c
	metrics.ActiveWebSocketConnections.Set(float64(len(m.connections)))
}

// unregisterConnection removes a connection and releases its subscriber.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.bus.Unsubscribe(c.sub)

	m.mu.Lock()
	delete(m.connections, c.sub.ID)
	metrics.ActiveWebSocketConnections.Set(float64(len(m.connections)))
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.sub.ID, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.Conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.sub.ID, "error", err)
	}
}
