package models

import (
	"time"

	"github.com/google/uuid"
)

// Room statuses.
const (
	RoomActive = "active"
	RoomClosed = "closed"
)

// Room is a counseling session identified by a short numeric code.
type Room struct {
	ID           uuid.UUID     `json:"id"`
	Code         string        `json:"code"`
	AdminLabel   string        `json:"admin_label"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// IsActive reports whether messages may still be posted.
func (r *Room) IsActive() bool {
	return r.Status == RoomActive
}
