package sechat

import (
	"strings"
	"time"
)

// OptimisticPrefix marks locally inserted, not yet committed messages.
const OptimisticPrefix = "optimistic-"

// Sender roles.
const (
	RoleCounselor = "counselor"
	RoleClient    = "client"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Message is a chat message as seen by a viewer: either a committed row
// returned by the server or an optimistic placeholder.
type Message struct {
	ID              string    `json:"id"`
	RoomID          string    `json:"room_id"`
	SenderRole      string    `json:"sender_role"`
	SenderName      string    `json:"sender_name"`
	ClientMessageID *string   `json:"client_message_id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key returns the lowercase idempotency key, or "" when there is none.
func (m Message) Key() string {
	if m.ClientMessageID == nil {
		return ""
	}
	return strings.ToLower(*m.ClientMessageID)
}

// IsOptimistic reports whether m is a local placeholder.
func IsOptimistic(m Message) bool {
	return strings.HasPrefix(m.ID, OptimisticPrefix)
}

// NewOptimistic builds the placeholder shown while a send is in flight.
// Its ID is derived from the key, so re-inserting it is a no-op.
func NewOptimistic(roomID, role, name, content, key string, now time.Time) Message {
	key = strings.ToLower(key)
	return Message{
		ID:              OptimisticPrefix + key,
		RoomID:          roomID,
		SenderRole:      role,
		SenderName:      name,
		ClientMessageID: &key,
		Content:         content,
		CreatedAt:       now,
	}
}

// valid reports whether m has the fields ordering depends on.
func (m Message) valid() bool {
	return m.ID != "" && !m.CreatedAt.IsZero()
}

// before is the canonical order: created_at ascending, then id.
func before(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
