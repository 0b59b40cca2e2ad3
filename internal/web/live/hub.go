// Package live streams tournament changes to browsers over Server-Sent
// Events and WebSockets. Both transports register with one Hub.
package live

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport names
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// sendBufferSize is the per-client queue of undelivered frames
const sendBufferSize = 64

// Frame is one named message pushed to every client
type Frame struct {
	Event string
	Data  []byte
}

// Client is a connected browser
type Client struct {
	id          string
	transport   string
	send        chan Frame
	connectedAt time.Time
}

// NewClient creates a client for the given transport
func NewClient(transport string) *Client {
	return &Client{
		id:          uuid.NewString(),
		transport:   transport,
		send:        make(chan Frame, sendBufferSize),
		connectedAt: time.Now(),
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// Frames returns the client's outgoing queue; it is closed when the hub
// drops the client
func (c *Client) Frames() <-chan Frame {
	return c.send
}

// Hub fans frames out to every connected client
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan Frame
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "live")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Frame, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop; it returns after Close
func (h *Hub) Run() {
	h.logger.Info("live hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("live client registered",
				slog.String("client_id", client.id),
				slog.String("transport", client.transport),
				slog.Int("total_clients", count))

		case client := <-h.unregister:
			h.remove(client)

		case frame := <-h.broadcast:
			h.fanOut(frame)

		case <-h.done:
			h.mu.Lock()
			count := len(h.clients)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("live hub stopped", slog.Int("disconnected_clients", count))
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("live client unregistered",
		slog.String("client_id", client.id),
		slog.String("transport", client.transport),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}

// fanOut queues the frame for every client. A client whose queue is full
// has fallen behind and is dropped; its connection handler sees the closed
// queue and disconnects, and the browser reconnects and refetches.
func (h *Hub) fanOut(frame Frame) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("live client too slow, dropping", slog.String("client_id", client.id))
		h.remove(client)
	}
}

// Register adds a client. It reports false if the hub is closed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client; unknown clients are ignored
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a frame for all clients without blocking
func (h *Hub) Broadcast(frame Frame) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	default:
		h.logger.Warn("live broadcast dropped - hub buffer full", slog.String("event", frame.Event))
	}
}

// Close disconnects every client and stops Run
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// formatSSE renders a frame in text/event-stream format. Each data line gets
// its own "data: " prefix.
func formatSSE(frame Frame) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(frame.Event)
	b.WriteString("\n")
	for _, line := range splitLines(string(frame.Data)) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits on \n, dropping \r and a trailing empty line
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
