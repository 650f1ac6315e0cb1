package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/orchestrator"
)

// writeWait bounds a single event write to a slow client.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Event types sent on /api/events.
const (
	EventPluginStarted  = "plugin_started"
	EventPluginFinished = "plugin_finished"
)

// Event is one message on the event stream.
type Event struct {
	Type      string              `json:"type"`
	Result    orchestrator.Result `json:"result"`
	Timestamp int64               `json:"timestamp"`
}

// Hub broadcasts plugin lifecycle events to WebSocket clients. It is an
// orchestrator.Observer.
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewHub creates a Hub with no clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed.")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer h.remove(conn)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PluginStarted broadcasts a plugin_started event.
func (h *Hub) PluginStarted(res orchestrator.Result) {
	h.broadcast(Event{Type: EventPluginStarted, Result: res, Timestamp: time.Now().UnixMilli()})
}

// PluginFinished broadcasts a plugin_finished event.
func (h *Hub) PluginFinished(res orchestrator.Result) {
	h.broadcast(Event{Type: EventPluginFinished, Result: res, Timestamp: time.Now().UnixMilli()})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		delete(h.clients, conn)
	}
}

// broadcast sends ev to every client, dropping those that fail.
func (h *Hub) broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode event.")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("Dropping event client.")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}
