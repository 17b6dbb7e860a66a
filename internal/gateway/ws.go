package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"foreman/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local orchestration service, no cross-origin policy.
		return true
	},
}

// Client is a connected websocket subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans notification events out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	ctx     context.Context
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Start pins the hub to the gateway lifecycle. Client goroutines stop when
// this context is cancelled, not when the upgrade request's context ends.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent serializes an event and queues it on every client. Slow
// clients drop messages rather than stalling the dispatcher.
func (h *Hub) BroadcastEvent(event notify.Event) {
	data, err := json.Marshal(map[string]interface{}{
		"type":      "notification",
		"id":        event.ID,
		"message":   event.Message,
		"reference": event.Reference,
		"created":   event.CreatedAt,
	})
	if err != nil {
		log.Printf("[Gateway] Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			log.Printf("[Gateway] Client %s send buffer full, dropping event", client.ID)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
	}
	g.hub.register(client)
	log.Printf("[Gateway] WebSocket client connected: %s", client.ID)

	ctx := g.hub.ctx
	if ctx == nil {
		ctx = r.Context()
	}
	go g.hub.writePump(ctx, client)
	go g.hub.readPump(client)
}

func (h *Hub) writePump(ctx context.Context, client *Client) {
	defer client.Conn.Close()
	for {
		select {
		case data, ok := <-client.Send:
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains inbound frames so pings and close frames are processed,
// and tears the client down on disconnect.
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister(client)
		client.Conn.Close()
		log.Printf("[Gateway] WebSocket client disconnected: %s", client.ID)
	}()
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
