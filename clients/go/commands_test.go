package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

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

func newServer(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()

	ds, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	hub := realtime.NewHub(logger)
	gw := chat.NewGateway(ds, hub, logger)
	srv := httptest.NewServer(api.NewRouter(logger, &config.Config{AllowedOrigins: []string{"*"}}, handlers.Deps{
		Gateway: gw,
		Rooms:   chat.NewRooms(ds, gw, hub, nil, logger),
		Auth:    auth.NewAuthenticator("admin@example.com", string(hash), auth.NewTokenManager("test-secret")),
		Hub:     hub,
		Store:   ds,
		Logger:  logger,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// run executes one CLI invocation against url with its own config dir.
func run(t *testing.T, url, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", url, "--config", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIFlow(t *testing.T) {
	url := newServer(t)
	adminDir := t.TempDir()
	userDir := t.TempDir()

	out, err := run(t, url, adminDir, "login", "admin@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	out, err = run(t, url, adminDir, "--format", "json", "create-room", "첫", "상담")
	require.NoError(t, err)
	var room sechat.Room
	require.NoError(t, json.Unmarshal([]byte(out), &room))
	assert.Equal(t, "첫 상담", room.AdminLabel)

	out, err = run(t, url, userDir, "join", room.Code, "--role", "client", "--name", "이내담")
	require.NoError(t, err)
	assert.Contains(t, out, "Joined room "+room.ID)

	out, err = run(t, url, userDir, "send", "안녕하세요")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent")

	key := sechat.NewClientMessageID()
	_, err = run(t, url, userDir, "send", "--key", key, "다시")
	require.NoError(t, err)
	out, err = run(t, url, userDir, "send", "--key", key, "다시")
	require.NoError(t, err)
	assert.Contains(t, out, "Already delivered")

	out, err = run(t, url, userDir, "--format", "json", "read")
	require.NoError(t, err)
	var msgs []sechat.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	count := 0
	for _, m := range msgs {
		if m.Key() == key {
			count++
		}
	}
	assert.Equal(t, 1, count)

	out, err = run(t, url, userDir, "read", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "이내담: 다시")

	out, err = run(t, url, adminDir, "close-room", room.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "closed")

	_, err = run(t, url, userDir, "send", "늦었어요")
	require.Error(t, err)
	assert.Equal(t, 403, sechat.StatusOf(err))
}

func TestCLIRequiresJoin(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", t.TempDir(), "read")
	assert.ErrorContains(t, err, "not joined")
}

func TestCLIRejectsFormat(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", t.TempDir(), "--format", "xml", "health")
	assert.ErrorContains(t, err, "invalid format")
}
