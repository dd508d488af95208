package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/wifisurvey/survey"
)

const liveWriteTimeout = 5 * time.Second

// liveClient serializes writes to one websocket connection
type liveClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *liveClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return c.conn.WriteJSON(v)
}

// LiveHub streams session events to websocket clients of the preview page
type LiveHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*liveClient
	closed  bool
}

// NewLiveHub creates an empty hub
func NewLiveHub() *LiveHub {
	return &LiveHub{
		clients: make(map[*websocket.Conn]*liveClient),
		upgrader: websocket.Upgrader{
			// The preview page is served from the same process
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// OnSessionEvent broadcasts the event to every connected client
func (h *LiveHub) OnSessionEvent(ev survey.Event) {
	h.Broadcast(ev)
}

// Broadcast writes v as JSON to every client, dropping clients that fail
func (h *LiveHub) Broadcast(v any) {
	h.mu.RLock()
	clients := make([]*liveClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(v); err != nil {
			log.Printf("Failed to send event to websocket client: %v", err)
			h.remove(c.conn)
		}
	}
}

// Serve upgrades the request, sends the initial event and keeps the
// connection registered until the client goes away
func (h *LiveHub) Serve(w http.ResponseWriter, r *http.Request, initial survey.Event) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := &liveClient{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = client
	h.mu.Unlock()
	defer h.remove(conn)

	if err := client.send(initial); err != nil {
		log.Printf("Failed to send initial snapshot: %v", err)
		return
	}

	// Client messages carry nothing; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (h *LiveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// ClientCount returns the number of connected clients
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *LiveHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*liveClient)
	h.mu.Unlock()

	for conn, c := range clients {
		c.mu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = conn.Close()
	}
}
