package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/model"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

// Encoder renders a job event as a WebSocket payload.
type Encoder func(model.JobEvent) ([]byte, error)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	done chan struct{}
}

// NewClient creates a client for one job
func NewClient(jobID string, conn *websocket.Conn) *Client {
	return &Client{
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

// Done is closed once the hub has released the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub tracks the WebSocket clients watching each job and feeds them the
// job's events in order.
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client registered", zap.String("job_id", client.JobID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug("websocket client unregistered", zap.String("job_id", client.JobID))
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.done)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.remove(client)
		}
	}
}

// Register adds a new client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns how many clients watch a job
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Pump forwards every event to the client until events closes or the
// client is released. A slow client blocks its own pump and nobody else's;
// events are never dropped.
func (h *Hub) Pump(client *Client, events <-chan model.JobEvent, encode Encoder) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := encode(ev)
			if err != nil {
				h.logger.Error("failed to encode websocket message", zap.String("job_id", client.JobID), zap.Error(err))
				continue
			}
			select {
			case client.Send <- data:
			case <-client.done:
				return
			}

		case <-client.done:
			return
		}
	}
}

// HandleConnection serves one WebSocket connection, writing the job's
// events as encode renders them and answering pings.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, events <-chan model.JobEvent, encode Encoder) {
	client := NewClient(jobID, c)
	if !h.Register(client) {
		return
	}

	go h.Pump(client, events, encode)

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.write(client)
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("job_id", jobID), zap.Error(err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.sendTo(client, data)
		}
	}

	h.Unregister(client)
	// The connection is recycled once the handler returns.
	<-written
}

// write owns all writes to the connection.
func (h *Hub) write(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// sendTo queues a direct reply unless the hub already released the client.
func (h *Hub) sendTo(client *Client, data []byte) {
	select {
	case <-client.done:
		return
	default:
	}
	select {
	case client.Send <- data:
	default:
	}
}
