package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/sechat/internal/metrics"
	"github.com/eldtechnologies/sechat/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func observePostgres(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

const roomColumns = `id, code, admin_label, status, created_at, closed_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID,
		&room.Code,
		&room.AdminLabel,
		&room.Status,
		&room.CreatedAt,
		&room.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom creates a new active room. Returns ErrDuplicateKey when the
// code is already held by another active room.
func (s *PostgresStore) CreateRoom(ctx context.Context, code, adminLabel string) (*models.Room, error) {
	defer observePostgres(time.Now())

	room, err := scanRoom(s.pool.QueryRow(ctx, `
		INSERT INTO rooms (code, admin_label)
		VALUES ($1, $2)
		RETURNING `+roomColumns, code, adminLabel))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	defer observePostgres(time.Now())

	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE id = $1
	`, id))
}

// GetActiveRoomByCode retrieves the active room holding the given code.
func (s *PostgresStore) GetActiveRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	defer observePostgres(time.Now())

	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE code = $1 AND status = 'active'
	`, code))
}

// ListRooms retrieves all rooms, newest first, with their participants.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		index[room.ID] = len(rooms)
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.pool.Query(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants ORDER BY joined_at
	`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		p, err := scanParticipant(prows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[p.RoomID]; ok {
			rooms[i].Participants = append(rooms[i].Participants, *p)
		}
	}

	return rooms, prows.Err()
}

// CloseRoom marks a room closed. Closing an already closed room keeps the
// original closed_at.
func (s *PostgresStore) CloseRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	defer observePostgres(time.Now())

	room, err := scanRoom(s.pool.QueryRow(ctx, `
		UPDATE rooms
		SET status = 'closed', closed_at = COALESCE(closed_at, NOW())
		WHERE id = $1
		RETURNING `+roomColumns, id))
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}
	return room, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID,
		&p.RoomID,
		&p.Role,
		&p.DisplayName,
		&p.SessionID,
		&p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// CreateParticipant inserts a participant. Returns ErrDuplicateKey when the
// role is already taken in the room.
func (s *PostgresStore) CreateParticipant(ctx context.Context, roomID uuid.UUID, role, displayName string) (*models.Participant, error) {
	defer observePostgres(time.Now())

	p, err := scanParticipant(s.pool.QueryRow(ctx, `
		INSERT INTO participants (room_id, role, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, role, display_name, session_id, joined_at
	`, roomID, role, displayName))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return p, nil
}

// GetParticipantByRole retrieves the participant holding a role in a room.
func (s *PostgresStore) GetParticipantByRole(ctx context.Context, roomID uuid.UUID, role string) (*models.Participant, error) {
	defer observePostgres(time.Now())

	return scanParticipant(s.pool.QueryRow(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = $1 AND role = $2
	`, roomID, role))
}

// GetParticipantBySession retrieves the participant of a room owning a session.
func (s *PostgresStore) GetParticipantBySession(ctx context.Context, roomID, sessionID uuid.UUID) (*models.Participant, error) {
	defer observePostgres(time.Now())

	return scanParticipant(s.pool.QueryRow(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = $1 AND session_id = $2
	`, roomID, sessionID))
}

// ListParticipants retrieves the participants of a room in join order.
func (s *PostgresStore) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, role, display_name, session_id, joined_at
		FROM participants WHERE room_id = $1 ORDER BY joined_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

const messageColumns = `id, room_id::text, sender_role, sender_name, client_message_id, content, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderRole,
		&msg.SenderName,
		&msg.ClientMessageID,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// InsertMessage commits a message, assigning its ID and created_at.
// Returns ErrDuplicateKey when (room_id, client_message_id) already exists.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	defer observePostgres(time.Now())

	id := ulid.Make().String()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, sender_role, sender_name, client_message_id, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, id, msg.RoomID, msg.SenderRole, msg.SenderName, msg.ClientMessageID, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	msg.ID = id
	return nil
}

// GetMessageByClientID retrieves the committed message for an idempotency key.
func (s *PostgresStore) GetMessageByClientID(ctx context.Context, roomID uuid.UUID, clientMessageID string) (*models.Message, error) {
	defer observePostgres(time.Now())

	return scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE room_id = $1 AND client_message_id = $2
	`, roomID, clientMessageID))
}

// ListMessages retrieves a room's messages in ascending (created_at, id) order.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE room_id = $1
		ORDER BY created_at ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// MessageStats counts all messages and finds the most recent one.
func (s *PostgresStore) MessageStats(ctx context.Context) (*MessageStats, error) {
	defer observePostgres(time.Now())

	stats := &MessageStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(created_at) FROM messages
	`).Scan(&stats.Total, &stats.LastActivity)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetSetting returns a setting value, or "" when unset.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetSetting upserts a setting value.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}
