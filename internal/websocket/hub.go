package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// ScanNotice is the live-feed message pushed to connected dashboards
// whenever a scan is recorded.
type ScanNotice struct {
	Type        string    `json:"type"`
	CodeID      string    `json:"code_id"`
	ScanID      string    `json:"scan_id"`
	ParentScan  string    `json:"parent_scan_id,omitempty"`
	DeviceClass string    `json:"device_class"`
	GeoHint     string    `json:"geo_hint"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Hub maintains the set of connected feed clients and fans out notices.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a notice to all connected clients. A client whose
// buffer is full misses the notice rather than blocking the scan path.
func (h *Hub) Broadcast(n ScanNotice) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("marshal scan notice", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
