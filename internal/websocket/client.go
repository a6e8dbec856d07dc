package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Pointers is the part of the board that pointer input drives.
type Pointers interface {
	PointerDown(key model.EventKey, offsetY float64, p drag.Pointer) error
	PointerMove(p drag.Pointer) (drag.State, bool)
	PointerUp(ctx context.Context, p drag.Pointer) (board.Release, error)
	PointerCancel()
}

// Inbound is a message from a client. Only pointer messages are handled.
//
//	{"type":"pointer","phase":"down","key":"primary:abc","offset_y":12,"x":310,"y":240}
type Inbound struct {
	Type    string         `json:"type"`
	Phase   string         `json:"phase"`
	Key     model.EventKey `json:"key,omitempty"`
	OffsetY float64        `json:"offset_y,omitempty"`
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
}

// Client represents a single WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	send     chan []byte
	pointers Pointers
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, pointers Pointers) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		pointers: pointers,
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump dispatches pointer messages until the connection closes. A drag
// left armed by a dropped connection is cancelled.
func (c *Client) readPump(ctx context.Context) {
	dragging := false
	defer func() {
		if dragging && c.pointers != nil {
			c.pointers.PointerCancel()
		}
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.hub.sendTo(c, Message{Type: TypeError, Error: "malformed message"})
			continue
		}
		if err := c.dispatch(ctx, in); err != nil {
			c.hub.logger.Debug("pointer rejected", "phase", in.Phase, "key", in.Key, "error", err)
			c.hub.sendTo(c, Message{Type: TypeError, Error: err.Error()})
		}
		switch in.Phase {
		case "down":
			dragging = err == nil
		case "up", "cancel":
			dragging = false
		}
	}
}

var errUnknownPhase = errors.New("unknown pointer phase")

func (c *Client) dispatch(ctx context.Context, in Inbound) error {
	if in.Type != "pointer" {
		return nil
	}
	if c.pointers == nil {
		return errors.New("pointer input not available")
	}
	p := drag.Pointer{X: in.X, Y: in.Y}
	switch in.Phase {
	case "down":
		return c.pointers.PointerDown(in.Key, in.OffsetY, p)
	case "move":
		c.pointers.PointerMove(p)
		return nil
	case "up":
		rel, err := c.pointers.PointerUp(ctx, p)
		if err != nil {
			return err
		}
		if rel.Kind == drag.OutcomeClick {
			c.hub.sendTo(c, Message{Type: TypeClick, Key: rel.Key})
		}
		return nil
	case "cancel":
		c.pointers.PointerCancel()
		return nil
	}
	return fmt.Errorf("%w %q", errUnknownPhase, in.Phase)
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel, connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
