package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant occupies one role (counselor or client) of a room.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	SessionID   uuid.UUID `json:"-"`
	JoinedAt    time.Time `json:"joined_at"`
}
