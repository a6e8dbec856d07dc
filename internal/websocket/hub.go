package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/notify"
)

const (
	TypeBoardChanged = string(board.ChangeBoard)
	TypeDragPreview  = string(board.ChangePreview)
	TypeToast        = "toast"
	TypeClick        = "click"
	TypeError        = "error"
)

// Message is pushed to every client. Drag is set for previews and Toast
// for notifications. Key names the event a click landed on and is only
// sent to the client that clicked.
type Message struct {
	Type  string         `json:"type"`
	Drag  *drag.State    `json:"drag,omitempty"`
	Toast *Toast         `json:"toast,omitempty"`
	Key   model.EventKey `json:"key,omitempty"`
	Error string         `json:"error,omitempty"`
}

type Toast struct {
	Message  string          `json:"message"`
	Severity notify.Severity `json:"severity"`
}

// NewMessage converts a board change into its wire form.
func NewMessage(c board.Change) Message {
	return Message{Type: string(c.Type), Drag: c.Drag}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
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

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block the board.
		}
	}
}

// sendTo queues msg for one client if it is still registered.
func (h *Hub) sendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal reply", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Follow broadcasts every change src reports.
func (h *Hub) Follow(src interface{ OnChange(func(board.Change)) }) {
	src.OnChange(func(c board.Change) {
		h.Broadcast(NewMessage(c))
	})
}

// ToastSink shows notifications on every connected screen.
type ToastSink struct {
	Hub *Hub
}

func (s ToastSink) Notify(message string, severity notify.Severity) {
	s.Hub.Broadcast(Message{Type: TypeToast, Toast: &Toast{Message: message, Severity: severity}})
}
