package sechat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrSessionStopped is returned by Send and Resend when Run has returned.
	ErrSessionStopped = errors.New("sechat: session stopped")

	// ErrRoomClosed is returned by Send and Resend once a room.closed event
	// has been received. Nothing is inserted into the timeline.
	ErrRoomClosed = errors.New("sechat: room closed")
)

// Outgoing tracks one logical send. Its Key is reused by Resend.
type Outgoing struct {
	Key     string
	Content string

	// Set once the server has committed the row.
	Message *Message
	Created bool
}

// Session is a viewer of one room. A single goroutine (Run) owns the
// timeline; history loads, realtime pushes and local sends reach it as
// events on one channel and are applied in arrival order.
type Session struct {
	RoomID string
	Role   string
	Name   string

	// ResyncInterval re-fetches the full history periodically. Zero
	// disables it; a push missed while disconnected then stays missing
	// until the next explicit Resync.
	ResyncInterval time.Duration

	// Keys generates idempotency keys.
	Keys KeyGenerator

	// Now stamps optimistic entries. Defaults to time.Now.
	Now func() time.Time

	// OnChange, when set, receives each new snapshot from the loop
	// goroutine.
	OnChange func([]Message)

	// OnError, when set, receives background fetch errors.
	OnError func(error)

	client   *Client
	events   chan sessionEvent
	done     chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
	snapshot atomic.Pointer[[]Message]
}

type eventKind int

const (
	historyLoaded eventKind = iota
	pushReceived
	optimisticInserted
)

type sessionEvent struct {
	kind     eventKind
	messages []Message
	err      error
}

// NewSession creates a viewer of roomID acting as role/name. The client
// must already hold the participant session (see Client.Join).
func NewSession(client *Client, roomID, role, name string) *Session {
	s := &Session{
		RoomID: roomID,
		Role:   role,
		Name:   name,
		client: client,
		events: make(chan sessionEvent, 64),
		done:   make(chan struct{}),
		Now:    time.Now,
	}
	empty := []Message{}
	s.snapshot.Store(&empty)
	return s
}

// Run subscribes to the room, loads its history and applies events until
// ctx is cancelled or the realtime stream ends. The subscription is owned
// by Run and released on return. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("sechat: session already running")
	}
	defer close(s.done)

	sub, err := s.client.Subscribe(ctx, s.RoomID)
	if err != nil {
		return err
	}
	defer sub.Close()

	// Subscribe first so rows committed during the fetch are not lost.
	go s.fetch(ctx)

	var tick <-chan time.Time
	if s.ResyncInterval > 0 {
		ticker := time.NewTicker(s.ResyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	timeline := NewTimeline()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Err()
			}
			switch ev.Type {
			case EventMessageCreated:
				timeline.Apply(*ev.Message)
			case EventRoomClosed:
				s.closed.Store(true)
			}

		case ev := <-s.events:
			if ev.err != nil {
				if s.OnError != nil {
					s.OnError(ev.err)
				}
				continue
			}
			timeline.Apply(ev.messages...)

		case <-tick:
			go s.fetch(ctx)
			continue
		}

		msgs := timeline.Messages()
		s.snapshot.Store(&msgs)
		if s.OnChange != nil {
			s.OnChange(msgs)
		}
	}
}

func (s *Session) fetch(ctx context.Context) {
	msgs, err := s.client.ListMessages(ctx, s.RoomID)
	s.enqueue(ctx, sessionEvent{kind: historyLoaded, messages: msgs, err: err})
}

// Resync requests a full history fetch.
func (s *Session) Resync(ctx context.Context) {
	go s.fetch(ctx)
}

func (s *Session) enqueue(ctx context.Context, ev sessionEvent) error {
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send shows content optimistically and submits it under a fresh key. On
// a submit error the optimistic entry stays in the timeline and out can be
// passed to Resend. A room already known to be closed fails with
// ErrRoomClosed before anything is shown.
func (s *Session) Send(ctx context.Context, content string) (*Outgoing, error) {
	out := &Outgoing{Key: s.Keys.New(), Content: content}
	return out, s.deliver(ctx, out)
}

// Resend retries a send with its original key. The server returns the
// committed row if the first attempt had succeeded.
func (s *Session) Resend(ctx context.Context, out *Outgoing) error {
	return s.deliver(ctx, out)
}

func (s *Session) deliver(ctx context.Context, out *Outgoing) error {
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	if s.closed.Load() {
		return ErrRoomClosed
	}
	optimistic := NewOptimistic(s.RoomID, s.Role, s.Name, out.Content, out.Key, s.Now())
	if err := s.enqueue(ctx, sessionEvent{kind: optimisticInserted, messages: []Message{optimistic}}); err != nil {
		return err
	}

	res, err := s.client.SubmitMessage(ctx, s.RoomID, SubmitRequest{
		SenderRole:      s.Role,
		SenderName:      s.Name,
		Content:         out.Content,
		ClientMessageID: out.Key,
	})
	if err != nil {
		return err
	}

	out.Message = &res.Message
	out.Created = res.Created
	// The push normally arrives too; applying the response is idempotent.
	return s.enqueue(ctx, sessionEvent{kind: pushReceived, messages: []Message{res.Message}})
}

// Messages returns the latest timeline snapshot.
func (s *Session) Messages() []Message {
	return *s.snapshot.Load()
}

// Closed reports whether a room.closed event has been received.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
