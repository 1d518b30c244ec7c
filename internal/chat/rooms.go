package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/metrics"
	"github.com/eldtechnologies/sechat/internal/models"
	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

const (
	// EntryMessageKey is the settings key of the notice posted into every new room.
	EntryMessageKey = "room_entry_message"

	maxAdminLabel   = 120
	maxEntryMessage = 600
	maxCodeAttempts = 10
)

// RoomCache caches room info for the viewers' status polling.
// *store.RedisStore implements it.
type RoomCache interface {
	GetRoomInfo(ctx context.Context, roomID string) (*models.Room, error)
	SetRoomInfo(ctx context.Context, room *models.Room) error
	InvalidateRoomInfo(ctx context.Context, roomID string) error
}

// JoinResult identifies the participant session created or resumed by Join.
type JoinResult struct {
	RoomID    uuid.UUID `json:"roomId"`
	SessionID uuid.UUID `json:"sessionId"`
	Role      string    `json:"role"`
	Name      string    `json:"displayName"`
	Reentry   bool      `json:"reentry"`
}

// Rooms implements room creation, joining, leaving and closing.
type Rooms struct {
	store     store.DataStore
	gateway   *Gateway
	publisher realtime.Publisher
	cache     RoomCache
	logger    zerolog.Logger

	// generateCode returns a candidate room code; replaced in tests.
	generateCode func() string
}

// NewRooms creates the room service. cache may be nil.
func NewRooms(ds store.DataStore, gw *Gateway, pub realtime.Publisher, cache RoomCache, logger zerolog.Logger) *Rooms {
	return &Rooms{
		store:        ds,
		gateway:      gw,
		publisher:    pub,
		cache:        cache,
		logger:       logger.With().Str("component", "rooms").Logger(),
		generateCode: randomCode,
	}
}

// randomCode returns a 4-digit code in [1000, 9999].
func randomCode() string {
	return strconv.Itoa(1000 + rand.IntN(9000))
}

// CreateRoom opens a room with a code unique among active rooms and posts
// the configured entry notice.
func (s *Rooms) CreateRoom(ctx context.Context, adminLabel string) (*models.Room, error) {
	label := strings.TrimSpace(adminLabel)
	if label == "" {
		return nil, &ValidationError{Message: "상담 명칭을 입력해 주세요"}
	}
	if len([]rune(label)) > maxAdminLabel {
		return nil, &ValidationError{Message: "상담 명칭은 120자 이하로 입력해 주세요"}
	}

	var room *models.Room
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		r, err := s.store.CreateRoom(ctx, s.generateCode(), label)
		if errors.Is(err, store.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, storeErr("create room", err)
		}
		room = r
		break
	}
	if room == nil {
		return nil, storeErr("create room", errors.New("고유 코드를 생성하지 못했습니다"))
	}

	metrics.RoomsCreated.Inc()
	s.logger.Info().Str("room_id", room.ID.String()).Str("code", room.Code).Msg("room created")

	entry, err := s.store.GetSetting(ctx, EntryMessageKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read entry message")
	} else if entry = strings.TrimSpace(entry); entry != "" {
		if _, err := s.gateway.PostSystemMessage(ctx, room.ID, entry); err != nil {
			s.logger.Warn().Err(err).Str("room_id", room.ID.String()).Msg("failed to post entry message")
		}
	}

	return room, nil
}

// ListRooms returns every room with its participants, newest first.
func (s *Rooms) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, storeErr("list rooms", err)
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

// CloseRoom marks a room closed and notifies its viewers.
func (s *Rooms) CloseRoom(ctx context.Context, roomID string) (*models.Room, error) {
	id, err := parseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	room, err := s.store.CloseRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Message: "상담방을 찾을 수 없습니다"}
	}
	if err != nil {
		return nil, storeErr("close room", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateRoomInfo(ctx, room.ID.String()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate room cache")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, realtime.RoomClosed(room.ID.String())); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish room closed")
		}
	}

	s.logger.Info().Str("room_id", room.ID.String()).Msg("room closed")
	return room, nil
}

// RoomInfo returns a room's code, status and participants. Viewers poll it
// to learn whether sends are still permitted.
func (s *Rooms) RoomInfo(ctx context.Context, roomID string) (*models.Room, error) {
	id, err := parseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if room, err := s.cache.GetRoomInfo(ctx, id.String()); err == nil && room != nil {
			return room, nil
		}
	}

	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return nil, storeErr("get room", err)
	}
	if room == nil {
		return nil, &NotFoundError{Message: "상담방을 찾을 수 없습니다"}
	}

	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, storeErr("list participants", err)
	}
	room.Participants = participants

	if s.cache != nil {
		if err := s.cache.SetRoomInfo(ctx, room); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache room info")
		}
	}
	return room, nil
}

// Join admits a counselor or client into the active room holding code.
// Each role is held by one participant; the same display name may re-enter
// and resumes the existing session.
func (s *Rooms) Join(ctx context.Context, code, role, displayName string) (*JoinResult, error) {
	code = strings.TrimSpace(code)
	name := sanitizeName(displayName)
	if code == "" || role == "" || name == "" {
		return nil, &ValidationError{Message: "상담방 코드, 역할, 표시 이름을 모두 입력해 주세요"}
	}
	if role != models.RoleCounselor && role != models.RoleClient {
		return nil, &ValidationError{Message: "올바르지 않은 역할입니다"}
	}

	room, err := s.store.GetActiveRoomByCode(ctx, code)
	if err != nil {
		return nil, storeErr("get room by code", err)
	}
	if room == nil {
		return nil, &NotFoundError{Message: "상담방을 찾을 수 없거나 이미 종료되었습니다"}
	}

	result := &JoinResult{RoomID: room.ID, Role: role, Name: name}

	p, err := s.store.CreateParticipant(ctx, room.ID, role, name)
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		existing, err := s.store.GetParticipantByRole(ctx, room.ID, role)
		if err != nil {
			return nil, storeErr("get participant", err)
		}
		if existing == nil || existing.DisplayName != name {
			return nil, &ConflictError{Message: fmt.Sprintf("이미 %s가 이 상담방에 참여하고 있습니다", models.RoleLabel(role))}
		}
		result.SessionID = existing.SessionID
		result.Reentry = true
		metrics.Joins.WithLabelValues("reentry").Inc()
	case err != nil:
		return nil, storeErr("create participant", err)
	default:
		result.SessionID = p.SessionID
		metrics.Joins.WithLabelValues("new").Inc()
	}

	s.invalidate(ctx, room.ID.String())

	notice := fmt.Sprintf("%s(%s)님이 입장했습니다.", name, models.RoleLabel(role))
	if _, err := s.gateway.PostSystemMessage(ctx, room.ID, notice); err != nil {
		s.logger.Warn().Err(err).Str("room_id", room.ID.String()).Msg("failed to post join notice")
	}

	return result, nil
}

// Leave posts a departure notice for the caller's participant. Admins
// leave silently.
func (s *Rooms) Leave(ctx context.Context, caller Caller, roomID, role string) error {
	if role == models.RoleAdmin {
		return nil
	}

	id, err := parseRoomID(roomID)
	if err != nil {
		return err
	}

	p, err := s.gateway.participant(ctx, id, caller.SessionID)
	if err != nil {
		return err
	}
	if p == nil {
		return &ForbiddenError{Message: "참여자가 아닙니다"}
	}

	notice := fmt.Sprintf("%s(%s)님이 나갔습니다.", p.DisplayName, models.RoleLabel(p.Role))
	if _, err := s.gateway.PostSystemMessage(ctx, id, notice); err != nil {
		return err
	}
	return nil
}

// EntryMessage returns the notice posted into new rooms.
func (s *Rooms) EntryMessage(ctx context.Context) (string, error) {
	msg, err := s.store.GetSetting(ctx, EntryMessageKey)
	if err != nil {
		return "", storeErr("get entry message", err)
	}
	return msg, nil
}

// SetEntryMessage stores the notice posted into new rooms. An empty
// message disables it.
func (s *Rooms) SetEntryMessage(ctx context.Context, message string) (string, error) {
	normalized := strings.TrimSpace(message)
	if len([]rune(normalized)) > maxEntryMessage {
		return "", &ValidationError{Message: "입장문은 600자 이하로 입력해 주세요"}
	}
	if err := s.store.SetSetting(ctx, EntryMessageKey, normalized); err != nil {
		return "", storeErr("set entry message", err)
	}
	return normalized, nil
}

func (s *Rooms) invalidate(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRoomInfo(ctx, roomID); err != nil {
		s.logger.Debug().Err(err).Msg("failed to invalidate room cache")
	}
}
