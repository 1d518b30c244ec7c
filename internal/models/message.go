package models

import "time"

// Sender roles.
const (
	RoleCounselor = "counselor"
	RoleClient    = "client"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Message is a committed chat message. Committed rows are immutable.
type Message struct {
	ID              string    `json:"id"` // ULID
	RoomID          string    `json:"room_id"`
	SenderRole      string    `json:"sender_role"`
	SenderName      string    `json:"sender_name"`
	ClientMessageID *string   `json:"client_message_id"` // nil for system messages
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key returns the idempotency key or "" when the message has none.
func (m *Message) Key() string {
	if m.ClientMessageID == nil {
		return ""
	}
	return *m.ClientMessageID
}

// RoleLabel returns the Korean display label used in system notices.
func RoleLabel(role string) string {
	switch role {
	case RoleCounselor:
		return "상담사"
	case RoleClient:
		return "내담자"
	case RoleAdmin:
		return "관리자"
	default:
		return role
	}
}
