package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPattern = "sechat:room:*:events"

// ChannelName returns the Redis channel carrying a room's events.
func ChannelName(roomID string) string {
	return fmt.Sprintf("sechat:room:%s:events", roomID)
}

// RoomFromChannel extracts the room ID from a channel name.
func RoomFromChannel(channel string) (string, bool) {
	rest, ok := strings.CutPrefix(channel, "sechat:room:")
	if !ok {
		return "", false
	}
	roomID, ok := strings.CutSuffix(rest, ":events")
	if !ok || roomID == "" {
		return "", false
	}
	return roomID, true
}

// RedisRelay publishes events through Redis so that every server instance
// delivers them to its own local hub.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger zerolog.Logger
}

// NewRedisRelay creates a relay feeding the given hub.
func NewRedisRelay(client *redis.Client, hub *Hub, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		logger: logger.With().Str("component", "redis_relay").Logger(),
	}
}

// Publish sends an event to the room's Redis channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, ChannelName(ev.RoomID), data).Err()
}

// Run pattern-subscribes to all room channels and forwards every event to
// the local hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channelPattern, err)
	}
	r.logger.Info().Str("pattern", channelPattern).Msg("relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed event")
				continue
			}
			if roomID, ok := RoomFromChannel(msg.Channel); ok && ev.RoomID == "" {
				ev.RoomID = roomID
			}

			_ = r.hub.Publish(ctx, ev)
		}
	}
}
