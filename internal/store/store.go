package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/sechat/internal/models"
)

var (
	// ErrDuplicateKey is returned when an insert violates a uniqueness
	// constraint: (room_id, client_message_id) for messages, (room_id, role)
	// for participants, or the active room code.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("not found")
)

// MessageStats aggregates committed messages across all rooms.
type MessageStats struct {
	Total        int64
	LastActivity *time.Time // nil when no message exists
}

// DataStore defines the interface for persistent storage of rooms,
// participants, messages and settings.
// Both PostgresStore and SQLiteStore implement this interface.
// Getters return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, code, adminLabel string) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	CloseRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// Participant operations
	CreateParticipant(ctx context.Context, roomID uuid.UUID, role, displayName string) (*models.Participant, error)
	GetParticipantByRole(ctx context.Context, roomID uuid.UUID, role string) (*models.Participant, error)
	GetParticipantBySession(ctx context.Context, roomID, sessionID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessageByClientID(ctx context.Context, roomID uuid.UUID, clientMessageID string) (*models.Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
	MessageStats(ctx context.Context) (*MessageStats, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
