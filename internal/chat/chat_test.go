package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

// recorder captures every published event.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(typ string) []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	store   *store.SQLiteStore
	pub     *recorder
	gateway *Gateway
	rooms   *Rooms
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	pub := &recorder{}
	logger := zerolog.Nop()
	gw := NewGateway(ds, pub, logger)
	return &fixture{
		store:   ds,
		pub:     pub,
		gateway: gw,
		rooms:   NewRooms(ds, gw, pub, nil, logger),
	}
}

// openRoom creates a room with a counselor and a client and returns their
// sessions.
func (f *fixture) openRoom(t *testing.T) (roomID string, counselor, client Caller) {
	t.Helper()
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, "테스트 상담")
	require.NoError(t, err)

	c, err := f.rooms.Join(ctx, room.Code, "counselor", "김상담")
	require.NoError(t, err)
	k, err := f.rooms.Join(ctx, room.Code, "client", "이내담")
	require.NoError(t, err)

	f.pub.reset()
	return room.ID.String(), Caller{SessionID: c.SessionID.String()}, Caller{SessionID: k.SessionID.String()}
}

func newKey() string {
	return uuid.NewString()
}
