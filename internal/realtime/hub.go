package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/metrics"
)

const subscriptionBuffer = 64

// Hub is the in-process fan-out point. It keeps the live subscriptions of
// every room and delivers each published event to all of them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Subscription receives the events of one room until closed.
type Subscription struct {
	RoomID string

	hub    *Hub
	events chan Event
	once   sync.Once
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from the hub. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe attaches a new subscriber to a room. Events committed before
// this call are not replayed.
func (h *Hub) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		RoomID: roomID,
		hub:    h,
		events: make(chan Event, subscriptionBuffer),
	}

	h.mu.Lock()
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	h.logger.Debug().Str("room_id", roomID).Msg("subscriber joined")
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.rooms[sub.RoomID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, sub.RoomID)
		}
	}
	close(sub.events)
	h.mu.Unlock()

	metrics.Subscribers.Dec()
	h.logger.Debug().Str("room_id", sub.RoomID).Msg("subscriber left")
}

// Publish delivers an event to every current subscriber of its room without
// blocking. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[ev.RoomID] {
		select {
		case sub.events <- ev:
			metrics.FanoutDelivered.Inc()
		default:
			metrics.FanoutDropped.Inc()
			h.logger.Warn().
				Str("room_id", ev.RoomID).
				Str("type", ev.Type).
				Msg("subscriber buffer full, event dropped")
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions of a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
