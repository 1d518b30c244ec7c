package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/sechat/internal/realtime"
)

func TestSubmitMessageCreatesAndPublishes(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, _ := f.openRoom(t)
	key := newKey()

	res, err := f.gateway.SubmitMessage(context.Background(), counselor, roomID, SubmitInput{
		SenderRole:      "counselor",
		SenderName:      "김상담",
		Content:         "  안녕하세요  ",
		ClientMessageID: key,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.Message.ID)
	assert.False(t, res.Message.CreatedAt.IsZero())
	assert.Equal(t, "안녕하세요", res.Message.Content)
	assert.Equal(t, key, res.Message.Key())

	events := f.pub.ofType(realtime.EventMessageCreated)
	require.Len(t, events, 1)
	assert.Equal(t, res.Message.ID, events[0].Message.ID)
	assert.Equal(t, roomID, events[0].RoomID)
}

func TestSubmitMessageIsIdempotent(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, _ := f.openRoom(t)
	ctx := context.Background()
	key := newKey()

	in := SubmitInput{SenderRole: "counselor", Content: "first", ClientMessageID: key}
	first, err := f.gateway.SubmitMessage(ctx, counselor, roomID, in)
	require.NoError(t, err)

	// A replay with different content still returns the committed row.
	in.Content = "second"
	second, err := f.gateway.SubmitMessage(ctx, counselor, roomID, in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Equal(t, "first", second.Message.Content)

	msgs, err := f.gateway.ListMessages(ctx, roomID)
	require.NoError(t, err)
	count := 0
	for _, m := range msgs {
		if m.Key() == key {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, f.pub.ofType(realtime.EventMessageCreated), 1)
}

func TestSubmitMessageKeyIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, _ := f.openRoom(t)
	ctx := context.Background()
	key := newKey()

	first, err := f.gateway.SubmitMessage(ctx, counselor, roomID, SubmitInput{
		SenderRole: "counselor", Content: "hi", ClientMessageID: strings.ToUpper(key),
	})
	require.NoError(t, err)
	second, err := f.gateway.SubmitMessage(ctx, counselor, roomID, SubmitInput{
		SenderRole: "counselor", Content: "hi", ClientMessageID: key,
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Message.ID, second.Message.ID)
}

func TestSubmitMessageConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	roomID, client := func() (string, Caller) {
		id, _, c := f.openRoom(t)
		return id, c
	}()
	ctx := context.Background()
	key := newKey()

	const n = 8
	results := make([]*SubmitResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.gateway.SubmitMessage(ctx, client, roomID, SubmitInput{
				SenderRole: "client", Content: "동시 전송", ClientMessageID: key,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		assert.Equal(t, results[0].Message.ID, results[i].Message.ID)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, f.pub.ofType(realtime.EventMessageCreated), 1)
}

func TestSubmitMessageValidation(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, _ := f.openRoom(t)

	tests := []struct {
		name   string
		roomID string
		in     SubmitInput
	}{
		{"empty content", roomID, SubmitInput{SenderRole: "counselor", Content: "   ", ClientMessageID: newKey()}},
		{"too long", roomID, SubmitInput{SenderRole: "counselor", Content: strings.Repeat("a", MaxContentLength+1), ClientMessageID: newKey()}},
		{"missing key", roomID, SubmitInput{SenderRole: "counselor", Content: "hi"}},
		{"malformed key", roomID, SubmitInput{SenderRole: "counselor", Content: "hi", ClientMessageID: "not-a-uuid"}},
		{"version 1 key", roomID, SubmitInput{SenderRole: "counselor", Content: "hi", ClientMessageID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}},
		{"bad room id", "room-1", SubmitInput{SenderRole: "counselor", Content: "hi", ClientMessageID: newKey()}},
		{"unknown role", roomID, SubmitInput{SenderRole: "system", Content: "hi", ClientMessageID: newKey()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gateway.SubmitMessage(context.Background(), counselor, tt.roomID, tt.in)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
		})
	}
	assert.Empty(t, f.pub.ofType(realtime.EventMessageCreated))
}

func TestSubmitMessageForbidden(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, client := f.openRoom(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller Caller
		role   string
	}{
		{"no session", Caller{}, "client"},
		{"unknown session", Caller{SessionID: uuid.NewString()}, "client"},
		{"role mismatch", client, "counselor"},
		{"admin without token", counselor, "admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gateway.SubmitMessage(ctx, tt.caller, roomID, SubmitInput{
				SenderRole: tt.role, Content: "hi", ClientMessageID: newKey(),
			})
			var fe *ForbiddenError
			assert.True(t, errors.As(err, &fe), "expected ForbiddenError, got %v", err)
		})
	}
}

func TestSubmitMessageAdmin(t *testing.T) {
	f := newFixture(t)
	roomID, _, _ := f.openRoom(t)

	res, err := f.gateway.SubmitMessage(context.Background(), Caller{Admin: true}, roomID, SubmitInput{
		SenderRole: "admin", Content: "공지", ClientMessageID: newKey(),
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "관리자", res.Message.SenderName)
}

func TestSubmitMessageClosedRoom(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, _ := f.openRoom(t)
	ctx := context.Background()

	_, err := f.rooms.CloseRoom(ctx, roomID)
	require.NoError(t, err)

	_, err = f.gateway.SubmitMessage(ctx, counselor, roomID, SubmitInput{
		SenderRole: "counselor", Content: "late", ClientMessageID: newKey(),
	})
	var closed *RoomClosedError
	require.True(t, errors.As(err, &closed))
	var fe *ForbiddenError
	assert.True(t, errors.As(err, &fe))
}

func TestSubmitMessageUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, _, _ = f.openRoom(t)

	_, err := f.gateway.SubmitMessage(context.Background(), Caller{Admin: true}, uuid.NewString(), SubmitInput{
		SenderRole: "admin", Content: "hi", ClientMessageID: newKey(),
	})
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestListMessagesOrdered(t *testing.T) {
	f := newFixture(t)
	roomID, counselor, client := f.openRoom(t)
	ctx := context.Background()

	empty := f.newEmptyRoom(t)
	msgs, err := f.gateway.ListMessages(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i, c := range []Caller{counselor, client, counselor} {
		role := "counselor"
		if i == 1 {
			role = "client"
		}
		_, err := f.gateway.SubmitMessage(ctx, c, roomID, SubmitInput{
			SenderRole: role, Content: "m", ClientMessageID: newKey(),
		})
		require.NoError(t, err)
	}

	msgs, err = f.gateway.ListMessages(ctx, roomID)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		ordered := prev.CreatedAt.Before(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
		assert.True(t, ordered, "messages %d and %d out of order", i-1, i)
	}
}

func (f *fixture) newEmptyRoom(t *testing.T) string {
	t.Helper()
	room, err := f.store.CreateRoom(context.Background(), "0000", "empty")
	require.NoError(t, err)
	return room.ID.String()
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "abc", sanitizeName("  a\tb\x00c  "))
	assert.Len(t, []rune(sanitizeName(strings.Repeat("가", 80))), 50)
}
