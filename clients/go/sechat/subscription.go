package sechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Event types pushed by the server.
const (
	EventMessageCreated = "message.created"
	EventRoomClosed     = "room.closed"
)

// Event is one realtime frame. Message is set for message.created, Status
// for room.closed.
type Event struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Message *Message `json:"message,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// Subscription is an owned realtime connection to one room. The caller
// must Close it.
type Subscription struct {
	RoomID string

	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

// Subscribe opens the room's realtime stream. Only rows committed after
// the connection is established are delivered.
func (c *Client) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + url.PathEscape(roomID) + "/ws"

	header := http.Header{}
	if c.SessionID != "" {
		header.Set("X-Session-ID", c.SessionID)
	}
	if c.AdminToken != "" {
		header.Set("Authorization", "Bearer "+c.AdminToken)
	}

	conn, _, err := c.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		RoomID: roomID,
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go sub.readLoop()
	return sub, nil
}

// Events returns the validated event stream. It is closed when the
// connection ends; Err then reports why.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err returns the error that ended the stream, nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the connection. Safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)

		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *Subscription) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if !s.accept(ev) {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// accept validates a frame before it can reach a timeline.
func (s *Subscription) accept(ev Event) bool {
	if ev.RoomID != s.RoomID {
		return false
	}
	switch ev.Type {
	case EventMessageCreated:
		return ev.Message != nil && ev.Message.valid() && ev.Message.RoomID == s.RoomID
	case EventRoomClosed:
		return true
	default:
		return false
	}
}
