package hub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is the frame sent to clients. Events carry only their type; clients
// re-fetch whatever they display.
type Event struct {
	Type string `json:"type"`
}

// Client represents a single push connection.
// It's essentially a channel that the websocket or SSE handler listens to.
type Client chan []byte

// ClientBuffer is the number of frames a client may lag behind before it is dropped.
const ClientBuffer = 16

func NewClient() Client {
	return make(Client, ClientBuffer)
}

// Observer is told about deliveries and connection counts.
type Observer interface {
	RecordBroadcast(event string)
	RecordDropped()
	SetClients(n int)
}

// Publisher forwards locally raised events to other instances.
type Publisher interface {
	Publish(event string)
}

// Hub manages all connected clients.
type Hub struct {
	clients   map[Client]struct{}
	mu        sync.RWMutex
	observer  Observer
	publisher Publisher
	logger    *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) SetObserver(o Observer) {
	h.observer = o
}

func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Subscribe adds a new client.
func (h *Hub) Subscribe(client Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.SetClients(n)
	}
}

// Unsubscribe removes a client and closes its channel. Unsubscribing twice is a no-op.
func (h *Hub) Unsubscribe(client Client) {
	h.mu.Lock()
	removed := h.remove(client)
	n := len(h.clients)
	h.mu.Unlock()

	if removed && h.observer != nil {
		h.observer.SetClients(n)
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client) // signals the connection handler to stop
	return true
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts events locally and forwards them to other instances.
func (h *Hub) Notify(events ...string) {
	for _, event := range events {
		h.Broadcast(event)
		if h.publisher != nil {
			h.publisher.Publish(event)
		}
	}
}

// Broadcast sends an event to every local client. It never blocks: a client
// whose buffer is full is disconnected.
func (h *Hub) Broadcast(event string) {
	messageBytes, err := json.Marshal(Event{Type: event})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", event), zap.Error(err))
		return
	}

	var slow []Client
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if h.observer != nil {
		h.observer.RecordBroadcast(event)
	}
	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range slow {
		h.remove(client)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Warn("dropped slow clients", zap.Int("count", len(slow)), zap.String("type", event))
	if h.observer != nil {
		for range slow {
			h.observer.RecordDropped()
		}
		h.observer.SetClients(n)
	}
}
