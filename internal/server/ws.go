package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/app"
)

const eventsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type eventsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventsClient) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// EventsHandler pushes controller status changes to websocket clients.
// Every client receives the current status on connect.
type EventsHandler struct {
	status  func() app.Status
	logger  *zap.Logger
	clients map[*eventsClient]bool
	mu      sync.RWMutex
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(status func() app.Status, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		status:  status,
		logger:  logger,
		clients: make(map[*eventsClient]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &eventsClient{conn: conn}
	msg, err := json.Marshal(h.status())
	if err == nil {
		if err := client.send(msg); err != nil {
			return
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast sends st to all connected clients.
func (h *EventsHandler) Broadcast(st app.Status) {
	msg, err := json.Marshal(st)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*eventsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.logger.Debug("dropping events client", zap.Error(err))
			c.conn.Close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *EventsHandler) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}
