package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/sechat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sechat.db". ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sechat.db"
	}

	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		admin_label TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_active_code ON rooms(code) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		display_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		joined_at DATETIME NOT NULL,
		UNIQUE (room_id, role)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_role TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		client_message_id TEXT,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (room_id, client_message_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at, id);

	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteRoomColumns = `id, code, admin_label, status, created_at, closed_at`

func scanSQLiteRoom(row rowScanner) (*models.Room, error) {
	room := &models.Room{}
	var idStr string
	var closedAt sql.NullTime

	err := row.Scan(
		&idStr,
		&room.Code,
		&room.AdminLabel,
		&room.Status,
		&room.CreatedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	room.ID = uuid.MustParse(idStr)
	if closedAt.Valid {
		t := closedAt.Time
		room.ClosedAt = &t
	}
	return room, nil
}

// CreateRoom creates a new active room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, code, adminLabel string) (*models.Room, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, code, admin_label, status, created_at)
		VALUES (?, ?, ?, 'active', ?)
	`, id.String(), code, adminLabel, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	return s.GetRoom(ctx, id)
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return scanSQLiteRoom(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteRoomColumns+` FROM rooms WHERE id = ?
	`, id.String()))
}

// GetActiveRoomByCode retrieves the active room holding the given code.
func (s *SQLiteStore) GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return scanSQLiteRoom(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteRoomColumns+` FROM rooms WHERE code = ? AND status = 'active'
	`, code))
}

// ListRooms retrieves all rooms, newest first, with their participants.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteRoomColumns+` FROM rooms ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}

	var rooms []models.Room
	for rows.Next() {
		room, err := scanSQLiteRoom(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: the room cursor must be closed before this query.
	for i := range rooms {
		participants, err := s.ListParticipants(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].Participants = participants
	}

	return rooms, nil
}

// CloseRoom marks a room closed.
func (s *SQLiteStore) CloseRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET status = 'closed', closed_at = COALESCE(closed_at, ?)
		WHERE id = ?
	`, time.Now().UTC(), id.String())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetRoom(ctx, id)
}

func scanSQLiteParticipant(row rowScanner) (*models.Participant, error) {
	p := &models.Participant{}
	var idStr, roomIDStr, sessionStr string

	err := row.Scan(
		&idStr,
		&roomIDStr,
		&p.Role,
		&p.DisplayName,
		&sessionStr,
		&p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	p.ID = uuid.MustParse(idStr)
	p.RoomID = uuid.MustParse(roomIDStr)
	p.SessionID = uuid.MustParse(sessionStr)
	return p, nil
}

// CreateParticipant inserts a participant with a fresh session ID.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, roomID uuid.UUID, role, displayName string) (*models.Participant, error) {
	p := &models.Participant{
		ID:          uuid.New(),
		RoomID:      roomID,
		Role:        role,
		DisplayName: displayName,
		SessionID:   uuid.New(),
		JoinedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, room_id, role, display_name, session_id, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID.String(), roomID.String(), role, displayName, p.SessionID.String(), p.JoinedAt)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return p, nil
}

// GetParticipantByRole retrieves the participant holding a role in a room.
func (s *SQLiteStore) GetParticipantByRole(ctx context.Context, roomID uuid.UUID, role string) (*models.Participant, error) {
	return scanSQLiteParticipant(s.db.QueryRowContext(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = ? AND role = ?
	`, roomID.String(), role))
}

// GetParticipantBySession retrieves the participant of a room owning a session.
func (s *SQLiteStore) GetParticipantBySession(ctx context.Context, roomID, sessionID uuid.UUID) (*models.Participant, error) {
	return scanSQLiteParticipant(s.db.QueryRowContext(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = ? AND session_id = ?
	`, roomID.String(), sessionID.String()))
}

// ListParticipants retrieves the participants of a room in join order.
func (s *SQLiteStore) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = ? ORDER BY joined_at
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanSQLiteParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

const sqliteMessageColumns = `id, room_id, sender_role, sender_name, client_message_id, content, created_at`

func scanSQLiteMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var key sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderRole,
		&msg.SenderName,
		&key,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if key.Valid {
		msg.ClientMessageID = &key.String
	}
	return msg, nil
}

// InsertMessage commits a message, assigning its ID and created_at.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	id := ulid.Make().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_role, sender_name, client_message_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, msg.RoomID, msg.SenderRole, msg.SenderName, msg.ClientMessageID, msg.Content, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrDuplicateKey
		}
		return err
	}

	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// GetMessageByClientID retrieves the committed message for an idempotency key.
func (s *SQLiteStore) GetMessageByClientID(ctx context.Context, roomID uuid.UUID, clientMessageID string) (*models.Message, error) {
	return scanSQLiteMessage(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages WHERE room_id = ? AND client_message_id = ?
	`, roomID.String(), clientMessageID))
}

// ListMessages retrieves a room's messages in ascending (created_at, id) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages WHERE room_id = ?
		ORDER BY created_at ASC, id ASC
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// MessageStats counts all messages and finds the most recent one.
func (s *SQLiteStore) MessageStats(ctx context.Context) (*MessageStats, error) {
	stats := &MessageStats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.Total); err != nil {
		return nil, err
	}

	// MAX() loses the DATETIME column type, so read the newest row instead.
	var last time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages ORDER BY created_at DESC LIMIT 1
	`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		stats.LastActivity = &last
	}
	return stats, nil
}

// GetSetting returns a setting value, or "" when unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetSetting upserts a setting value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}
