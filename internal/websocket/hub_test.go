package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/notify"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastPreview(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	state := drag.State{TargetEventID: "abc", TargetCalendarID: "primary", Mode: drag.ModeMove, CurrentTopPx: 120}
	hub.Broadcast(NewMessage(board.Change{Type: board.ChangePreview, Drag: &state}))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != TypeDragPreview {
			t.Errorf("type = %s, want %s", got.Type, TypeDragPreview)
		}
		if got.Drag == nil || got.Drag.TargetEventID != "abc" || got.Drag.CurrentTopPx != 120 {
			t.Errorf("drag = %+v", got.Drag)
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(Message{Type: TypeBoardChanged})
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Message{Type: TypeBoardChanged})
	}

	// This should drop the message, not panic or block
	hub.Broadcast(Message{Type: TypeToast})

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

type changeSource struct {
	fns []func(board.Change)
}

func (s *changeSource) OnChange(fn func(board.Change)) { s.fns = append(s.fns, fn) }

func TestFollow(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	src := &changeSource{}
	hub.Follow(src)
	if len(src.fns) != 1 {
		t.Fatalf("listeners = %d, want 1", len(src.fns))
	}
	src.fns[0](board.Change{Type: board.ChangeBoard})

	if got := receive(t, c); got.Type != TypeBoardChanged || got.Drag != nil {
		t.Errorf("message = %+v", got)
	}
}

func TestToastSink(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	var sink notify.Sink = ToastSink{Hub: hub}
	sink.Notify("Couldn't save the event", notify.Error)

	got := receive(t, c)
	if got.Type != TypeToast || got.Toast == nil {
		t.Fatalf("message = %+v", got)
	}
	if got.Toast.Message != "Couldn't save the event" || got.Toast.Severity != notify.Error {
		t.Errorf("toast = %+v", got.Toast)
	}
}

func TestSendToUnregistered(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	// Should not panic or queue
	hub.sendTo(c, Message{Type: TypeError})
	if len(c.send) != 0 {
		t.Error("message queued for unregistered client")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(Message{Type: TypeBoardChanged})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
