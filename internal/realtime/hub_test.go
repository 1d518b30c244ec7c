package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/sechat/internal/models"
)

func testMessage(roomID, id string) models.Message {
	return models.Message{
		ID:         id,
		RoomID:     roomID,
		SenderRole: models.RoleClient,
		SenderName: "이내담",
		Content:    "hi",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestHubDeliversToRoomOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a1 := hub.Subscribe("room-a")
	a2 := hub.Subscribe("room-a")
	b := hub.Subscribe("room-b")
	defer a1.Close()
	defer a2.Close()
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), MessageCreated(testMessage("room-a", "01A"))))

	for _, sub := range []*Subscription{a1, a2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, EventMessageCreated, ev.Type)
			assert.Equal(t, "01A", ev.Message.ID)
		default:
			t.Fatal("event not delivered")
		}
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("room-a")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*2; i++ {
			hub.Publish(context.Background(), RoomClosed("room-a"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.Events(), subscriptionBuffer)
}

func TestHubSubscriptionClose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("room-a")
	assert.Equal(t, 1, hub.SubscriberCount("room-a"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount("room-a"))

	_, ok := <-sub.Events()
	assert.False(t, ok)

	require.NoError(t, hub.Publish(context.Background(), RoomClosed("room-a")))
}

func TestEventConstructors(t *testing.T) {
	ev := MessageCreated(testMessage("room-a", "01A"))
	assert.Equal(t, "room-a", ev.RoomID)
	require.NotNil(t, ev.Message)

	closed := RoomClosed("room-b")
	assert.Equal(t, EventRoomClosed, closed.Type)
	assert.Equal(t, models.RoomClosed, closed.Status)
	assert.Nil(t, closed.Message)
}
