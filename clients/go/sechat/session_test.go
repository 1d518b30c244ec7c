package sechat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/sechat/clients/go/sechat"
	"github.com/eldtechnologies/sechat/internal/api"
	"github.com/eldtechnologies/sechat/internal/auth"
	"github.com/eldtechnologies/sechat/internal/chat"
	"github.com/eldtechnologies/sechat/internal/config"
	"github.com/eldtechnologies/sechat/internal/handlers"
	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "s3cret-pass"
)

func newServer(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()

	ds, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	hub := realtime.NewHub(logger)
	gw := chat.NewGateway(ds, hub, logger)
	deps := handlers.Deps{
		Gateway: gw,
		Rooms:   chat.NewRooms(ds, gw, hub, nil, logger),
		Auth:    auth.NewAuthenticator(adminEmail, string(hash), auth.NewTokenManager("test-secret")),
		Hub:     hub,
		Store:   ds,
		Logger:  logger,
	}

	srv := httptest.NewServer(api.NewRouter(logger, &config.Config{AllowedOrigins: []string{"*"}}, deps))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newClient(t *testing.T, url string) *sechat.Client {
	c := sechat.NewClient(url)
	c.ConfigDir = t.TempDir()
	return c
}

func openRoom(t *testing.T, url string) (*sechat.Client, *sechat.Room) {
	t.Helper()
	admin := newClient(t, url)
	require.NoError(t, admin.Login(context.Background(), adminEmail, adminPassword))
	room, err := admin.CreateRoom(context.Background(), "상담 1")
	require.NoError(t, err)
	return admin, room
}

func withKey(msgs []sechat.Message, key string) []sechat.Message {
	var out []sechat.Message
	for _, m := range msgs {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	return out
}

func TestClientSubmitIdempotent(t *testing.T) {
	url := newServer(t)
	_, room := openRoom(t, url)
	ctx := context.Background()

	c := newClient(t, url)
	joined, err := c.Join(ctx, room.Code, sechat.RoleClient, "이내담")
	require.NoError(t, err)
	assert.False(t, joined.Reentry)
	assert.Equal(t, joined.SessionID, c.SessionID)

	req := sechat.SubmitRequest{
		SenderRole:      sechat.RoleClient,
		SenderName:      "이내담",
		Content:         "안녕하세요",
		ClientMessageID: sechat.NewClientMessageID(),
	}
	first, err := c.SubmitMessage(ctx, room.ID, req)
	require.NoError(t, err)
	assert.True(t, first.Created)

	again, err := c.SubmitMessage(ctx, room.ID, req)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Message.ID, again.Message.ID)

	msgs, err := c.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, withKey(msgs, req.ClientMessageID), 1)
}

func TestClientErrors(t *testing.T) {
	url := newServer(t)
	_, room := openRoom(t, url)
	ctx := context.Background()

	c := newClient(t, url)
	_, err := c.Join(ctx, "0000", sechat.RoleClient, "이내담")
	assert.Equal(t, http.StatusNotFound, sechat.StatusOf(err))

	_, err = c.SubmitMessage(ctx, room.ID, sechat.SubmitRequest{
		SenderRole:      sechat.RoleClient,
		SenderName:      "이내담",
		Content:         "hi",
		ClientMessageID: sechat.NewClientMessageID(),
	})
	assert.Equal(t, http.StatusForbidden, sechat.StatusOf(err))

	_, err = c.CreateRoom(ctx, "무단")
	assert.Equal(t, http.StatusUnauthorized, sechat.StatusOf(err))
	assert.Zero(t, sechat.StatusOf(errors.New("plain")))
}

func TestClientConfigRoundTrip(t *testing.T) {
	c := newClient(t, "http://example.invalid")
	require.NoError(t, c.SaveConfig(&sechat.Config{
		BaseURL:   "http://example.invalid",
		RoomID:    "room-1",
		SessionID: "sess-1",
		Role:      sechat.RoleCounselor,
	}))

	other := sechat.NewClient("http://example.invalid")
	other.ConfigDir = c.ConfigDir
	cfg, err := other.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "room-1", cfg.RoomID)
	assert.Equal(t, "sess-1", other.SessionID)
}

func TestSessionReconcilesSendAndPush(t *testing.T) {
	url := newServer(t)
	admin, room := openRoom(t, url)

	counselor := newClient(t, url)
	_, err := counselor.Join(context.Background(), room.Code, sechat.RoleCounselor, "김상담")
	require.NoError(t, err)
	client := newClient(t, url)
	_, err = client.Join(context.Background(), room.Code, sechat.RoleClient, "이내담")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := sechat.NewSession(counselor, room.ID, sechat.RoleCounselor, "김상담")
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// Both join notices arrive through history or push.
	require.Eventually(t, func() bool { return len(s.Messages()) >= 2 }, 5*time.Second, 10*time.Millisecond)

	out, err := s.Send(ctx, "오늘 어떠셨어요?")
	require.NoError(t, err)
	require.NotNil(t, out.Message)
	assert.True(t, out.Created)

	require.Eventually(t, func() bool {
		held := withKey(s.Messages(), out.Key)
		return len(held) == 1 && !sechat.IsOptimistic(held[0])
	}, 5*time.Second, 10*time.Millisecond)

	// A retry of the same send commits nothing new.
	require.NoError(t, s.Resend(ctx, out))
	assert.False(t, out.Created)
	held := withKey(s.Messages(), out.Key)
	require.Len(t, held, 1)
	assert.Equal(t, out.Message.ID, held[0].ID)

	// Another participant's row arrives by push.
	reply, err := client.SubmitMessage(ctx, room.ID, sechat.SubmitRequest{
		SenderRole:      sechat.RoleClient,
		SenderName:      "이내담",
		Content:         "괜찮았어요",
		ClientMessageID: sechat.NewClientMessageID(),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(withKey(s.Messages(), reply.Message.Key())) == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = admin.CloseRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Eventually(t, s.Closed, 5*time.Second, 10*time.Millisecond)

	// Once the close is known, sends fail without an optimistic entry.
	before := len(s.Messages())
	_, err = s.Send(ctx, "종료 후 메시지")
	assert.ErrorIs(t, err, sechat.ErrRoomClosed)
	assert.Len(t, s.Messages(), before)

	msgs := s.Messages()
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "timeline out of order")
	}

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)

	_, err = s.Send(context.Background(), "늦은 메시지")
	assert.ErrorIs(t, err, sechat.ErrSessionStopped)
	assert.ErrorContains(t, s.Run(context.Background()), "already running")
}

func TestSessionFailedSendLeavesOptimistic(t *testing.T) {
	url := newServer(t)
	admin, room := openRoom(t, url)

	counselor := newClient(t, url)
	_, err := counselor.Join(context.Background(), room.Code, sechat.RoleCounselor, "김상담")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closed before the session subscribes, so no room.closed push arrives
	// and the rejection comes from the server.
	_, err = admin.CloseRoom(ctx, room.ID)
	require.NoError(t, err)

	var changes atomic.Int32
	s := sechat.NewSession(counselor, room.ID, sechat.RoleCounselor, "김상담")
	s.OnChange = func([]sechat.Message) { changes.Add(1) }
	go s.Run(ctx)

	require.Eventually(t, func() bool { return len(s.Messages()) >= 1 }, 5*time.Second, 10*time.Millisecond)

	out, err := s.Send(ctx, "전송 실패")
	require.Error(t, err)
	var apiErr *sechat.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Nil(t, out.Message)

	orphaned := func() bool {
		held := withKey(s.Messages(), out.Key)
		return len(held) == 1 && sechat.IsOptimistic(held[0])
	}
	// History load and the optimistic insert.
	require.Eventually(t, func() bool { return changes.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, orphaned())

	// A full resync does not remove the orphaned entry.
	s.Resync(ctx)
	require.Eventually(t, func() bool { return changes.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, orphaned())
	assert.False(t, s.Closed())
}
