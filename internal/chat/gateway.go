// Package chat implements the message store gateway and the room plumbing
// around it.
package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/metrics"
	"github.com/eldtechnologies/sechat/internal/models"
	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

// MaxContentLength bounds a message body in bytes.
const MaxContentLength = 4000

const systemSenderName = "시스템"

// uuidV4Regex matches the canonical UUID v4 layout (version 4, RFC 4122 variant).
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// IsClientMessageID reports whether s is shaped like a UUID v4.
func IsClientMessageID(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// SubmitInput is a validated-at-the-boundary send request.
type SubmitInput struct {
	SenderRole      string
	SenderName      string
	Content         string
	ClientMessageID string
}

// SubmitResult carries the committed row. Created is false when the
// idempotency key had already been committed and the stored row is returned.
type SubmitResult struct {
	Message models.Message
	Created bool
}

// Gateway persists and reads messages, enforcing room and participant
// checks and resolving idempotency-key collisions.
type Gateway struct {
	store     store.DataStore
	publisher realtime.Publisher
	logger    zerolog.Logger
}

// NewGateway creates a gateway publishing committed rows to pub.
func NewGateway(ds store.DataStore, pub realtime.Publisher, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store:     ds,
		publisher: pub,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

func parseRoomID(roomID string) (uuid.UUID, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return uuid.Nil, &ValidationError{Message: "올바르지 않은 상담방 ID입니다"}
	}
	return id, nil
}

// ListMessages returns the committed messages of a room in ascending
// (created_at, id) order. An empty room yields an empty slice.
func (g *Gateway) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	id, err := parseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	messages, err := g.store.ListMessages(ctx, id)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return messages, nil
}

// SubmitMessage commits a message once per idempotency key. A repeated key
// returns the already committed row with Created=false and emits nothing.
func (g *Gateway) SubmitMessage(ctx context.Context, caller Caller, roomID string, in SubmitInput) (*SubmitResult, error) {
	result, err := g.submit(ctx, caller, roomID, in)
	switch {
	case err == nil && result.Created:
		metrics.MessagesSubmitted.WithLabelValues("created").Inc()
	case err == nil:
		metrics.MessagesSubmitted.WithLabelValues("replayed").Inc()
	case errors.As(err, new(*StoreError)):
		metrics.MessagesSubmitted.WithLabelValues("error").Inc()
	default:
		metrics.MessagesSubmitted.WithLabelValues("rejected").Inc()
	}
	return result, err
}

func (g *Gateway) submit(ctx context.Context, caller Caller, roomID string, in SubmitInput) (*SubmitResult, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, &ValidationError{Message: "메시지 내용을 입력해 주세요"}
	}
	if len(content) > MaxContentLength {
		return nil, &ValidationError{Message: "메시지가 너무 깁니다"}
	}

	key := strings.TrimSpace(in.ClientMessageID)
	if key == "" {
		return nil, &ValidationError{Message: "clientMessageId가 필요합니다"}
	}
	if !IsClientMessageID(key) {
		return nil, &ValidationError{Message: "clientMessageId 형식이 올바르지 않습니다"}
	}
	key = strings.ToLower(key)

	rid, err := parseRoomID(roomID)
	if err != nil {
		return nil, err
	}

	senderName := sanitizeName(in.SenderName)

	switch in.SenderRole {
	case models.RoleAdmin:
		if !caller.Admin {
			return nil, &ForbiddenError{Message: "관리자 인증이 필요합니다"}
		}
		if senderName == "" {
			senderName = models.RoleLabel(models.RoleAdmin)
		}
	case models.RoleCounselor, models.RoleClient:
		p, err := g.participant(ctx, rid, caller.SessionID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Role != in.SenderRole {
			return nil, &ForbiddenError{Message: "참여자가 아닙니다"}
		}
		if senderName == "" {
			senderName = p.DisplayName
		}
	default:
		return nil, &ValidationError{Message: "올바르지 않은 역할입니다"}
	}

	room, err := g.store.GetRoom(ctx, rid)
	if err != nil {
		return nil, storeErr("get room", err)
	}
	if room == nil {
		return nil, &NotFoundError{Message: "상담방을 찾을 수 없습니다"}
	}
	if !room.IsActive() {
		return nil, &RoomClosedError{RoomID: roomID}
	}

	msg := &models.Message{
		RoomID:          rid.String(),
		SenderRole:      in.SenderRole,
		SenderName:      senderName,
		ClientMessageID: &key,
		Content:         content,
	}

	err = g.store.InsertMessage(ctx, msg)
	if errors.Is(err, store.ErrDuplicateKey) {
		existing, err := g.store.GetMessageByClientID(ctx, rid, key)
		if err != nil {
			return nil, storeErr("get message by client id", err)
		}
		if existing == nil {
			return nil, storeErr("get message by client id", errors.New("duplicate key without committed row"))
		}
		g.logger.Debug().
			Str("room_id", roomID).
			Str("client_message_id", key).
			Str("message_id", existing.ID).
			Msg("idempotent replay")
		return &SubmitResult{Message: *existing, Created: false}, nil
	}
	if err != nil {
		return nil, storeErr("insert message", err)
	}

	g.publish(ctx, realtime.MessageCreated(*msg))
	return &SubmitResult{Message: *msg, Created: true}, nil
}

// participant resolves the caller's session to a participant of the room.
func (g *Gateway) participant(ctx context.Context, roomID uuid.UUID, sessionID string) (*models.Participant, error) {
	sid, err := uuid.Parse(strings.TrimSpace(sessionID))
	if err != nil {
		return nil, nil
	}
	p, err := g.store.GetParticipantBySession(ctx, roomID, sid)
	if err != nil {
		return nil, storeErr("get participant", err)
	}
	return p, nil
}

// PostSystemMessage commits a system notice (no idempotency key) and
// publishes it like any other row.
func (g *Gateway) PostSystemMessage(ctx context.Context, roomID uuid.UUID, content string) (*models.Message, error) {
	msg := &models.Message{
		RoomID:     roomID.String(),
		SenderRole: models.RoleSystem,
		SenderName: systemSenderName,
		Content:    content,
	}
	if err := g.store.InsertMessage(ctx, msg); err != nil {
		return nil, storeErr("insert system message", err)
	}

	metrics.SystemMessages.Inc()
	g.publish(ctx, realtime.MessageCreated(*msg))
	return msg, nil
}

// publish emits a committed row. A lost push is tolerated: viewers
// reconcile on their next full fetch.
func (g *Gateway) publish(ctx context.Context, ev realtime.Event) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, ev); err != nil {
		g.logger.Warn().Err(err).Str("room_id", ev.RoomID).Str("type", ev.Type).Msg("publish failed")
	}
}

// sanitizeName trims and limits a display name to 50 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	return name
}
