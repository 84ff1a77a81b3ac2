package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/logging"
)

// StreamManager manages WebSocket connections for real-time updates. Every
// connection receives all status transitions and log entries; there is a
// single automation, so there is nothing to subscribe to.
type StreamManager struct {
	// upgrader for upgrading HTTP connections to WebSocket
	upgrader websocket.Upgrader

	// connections holds the active WebSocket connections
	connections map[*websocket.Conn]*ConnectionMetadata

	// mutex for thread-safe access
	mu sync.RWMutex

	controller *automation.Controller

	// detach functions for the controller and bus subscriptions
	detach []func()
}

// ConnectionMetadata stores metadata about a WebSocket connection
type ConnectionMetadata struct {
	Username    string
	ConnectedAt time.Time
	LastPingAt  time.Time

	// writeMu serializes writes: the broadcast path, the ping routine and
	// the read loop's pong reply may all write concurrently, and
	// gorilla/websocket allows only one writer at a time.
	writeMu sync.Mutex
}

// StreamUpdate represents a real-time update pushed to clients
type StreamUpdate struct {
	Type      string            `json:"type"` // "status", "log", "pong"
	Timestamp time.Time         `json:"timestamp"`
	Status    *automation.State `json:"status,omitempty"`
	Log       *logging.Entry    `json:"log,omitempty"`
}

// StreamMessage represents incoming WebSocket messages
type StreamMessage struct {
	Type string `json:"type"` // "ping"
}

// NewStreamManager creates a new stream manager wired to the controller and
// the log bus
func NewStreamManager(controller *automation.Controller, bus *logging.Bus) *StreamManager {
	sm := &StreamManager{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The dashboard is served from arbitrary origins in
				// development; auth happens before the upgrade.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*websocket.Conn]*ConnectionMetadata),
		controller:  controller,
	}

	if controller != nil {
		sm.detach = append(sm.detach, controller.OnStatusChange(func(state automation.State) {
			sm.broadcast(StreamUpdate{
				Type:      "status",
				Timestamp: time.Now(),
				Status:    &state,
			})
		}))
	}
	if bus != nil {
		sm.detach = append(sm.detach, bus.Subscribe(func(entry logging.Entry) {
			sm.broadcast(StreamUpdate{
				Type:      "log",
				Timestamp: entry.Timestamp,
				Log:       &entry,
			})
		}))
	}

	return sm
}

// HandleWebSocket handles WebSocket connection upgrade and management
func (sm *StreamManager) HandleWebSocket(w http.ResponseWriter, r *http.Request, username string) {
	conn, err := sm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sm.mu.Lock()
	sm.connections[conn] = &ConnectionMetadata{
		Username:    username,
		ConnectedAt: time.Now(),
		LastPingAt:  time.Now(),
	}
	sm.mu.Unlock()

	defer func() {
		sm.mu.Lock()
		delete(sm.connections, conn)
		sm.mu.Unlock()
		log.Printf("WebSocket connection closed for %s", username)
	}()

	log.Printf("WebSocket connection established for %s", username)

	// New clients get the current state immediately.
	if sm.controller != nil {
		state := sm.controller.Status()
		sm.sendMessage(conn, StreamUpdate{
			Type:      "status",
			Timestamp: time.Now(),
			Status:    &state,
		})
	}

	conn.SetPongHandler(func(string) error {
		sm.mu.Lock()
		if meta, exists := sm.connections[conn]; exists {
			meta.LastPingAt = time.Now()
		}
		sm.mu.Unlock()
		return nil
	})

	// Start ping routine
	go sm.pingRoutine(conn)

	// Handle incoming messages
	for {
		var msg StreamMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		sm.handleMessage(conn, &msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (sm *StreamManager) handleMessage(conn *websocket.Conn, msg *StreamMessage) {
	switch msg.Type {
	case "ping":
		sm.sendMessage(conn, StreamUpdate{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	default:
		log.Printf("Unknown WebSocket message type: %s", msg.Type)
	}
}

// broadcast sends an update to every connected client
func (sm *StreamManager) broadcast(update StreamUpdate) {
	sm.mu.RLock()
	connsCopy := make([]*websocket.Conn, 0, len(sm.connections))
	for conn := range sm.connections {
		connsCopy = append(connsCopy, conn)
	}
	sm.mu.RUnlock()

	for _, conn := range connsCopy {
		sm.sendMessage(conn, update)
	}
}

// sendMessage sends a message to a WebSocket connection
func (sm *StreamManager) sendMessage(conn *websocket.Conn, update StreamUpdate) {
	sm.mu.RLock()
	meta := sm.connections[conn]
	sm.mu.RUnlock()
	if meta == nil {
		return
	}

	meta.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := conn.WriteJSON(update)
	meta.writeMu.Unlock()

	if err != nil {
		log.Printf("Failed to send WebSocket message: %v", err)
		sm.removeConnection(conn)
	}
}

// removeConnection drops a connection after a write failure
func (sm *StreamManager) removeConnection(conn *websocket.Conn) {
	sm.mu.Lock()
	delete(sm.connections, conn)
	sm.mu.Unlock()

	conn.Close()
}

// pingRoutine sends periodic ping messages to keep the connection alive
func (sm *StreamManager) pingRoutine(conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		sm.mu.RLock()
		meta := sm.connections[conn]
		sm.mu.RUnlock()
		if meta == nil {
			return
		}

		meta.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		meta.writeMu.Unlock()

		if err != nil {
			sm.removeConnection(conn)
			return
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (sm *StreamManager) GetConnectedClients() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.connections)
}

// Close detaches the manager from its sources and closes all connections
func (sm *StreamManager) Close() {
	for _, fn := range sm.detach {
		fn()
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for conn := range sm.connections {
		conn.Close()
	}
	sm.connections = make(map[*websocket.Conn]*ConnectionMetadata)
}
