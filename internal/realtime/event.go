// Package realtime fans committed rows out to the viewers of a room.
package realtime

import (
	"context"

	"github.com/eldtechnologies/sechat/internal/models"
)

// Event types.
const (
	EventMessageCreated = "message.created"
	EventRoomClosed     = "room.closed"
)

// Event is the tagged envelope pushed to subscribers. Exactly one of the
// payload fields is set, selected by Type.
type Event struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Message *models.Message `json:"message,omitempty"`
	Status  string          `json:"status,omitempty"`
}

// MessageCreated builds the event emitted once per committed insert.
func MessageCreated(msg models.Message) Event {
	return Event{Type: EventMessageCreated, RoomID: msg.RoomID, Message: &msg}
}

// RoomClosed builds the event emitted when a room is closed.
func RoomClosed(roomID string) Event {
	return Event{Type: EventRoomClosed, RoomID: roomID, Status: models.RoomClosed}
}

// Publisher pushes events to the subscribers of a room. Delivery is
// fire-and-forget; there is no acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
