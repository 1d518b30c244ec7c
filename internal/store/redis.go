package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/sechat/internal/metrics"
	"github.com/eldtechnologies/sechat/internal/models"
)

const roomInfoTTL = 5 * time.Second

// RedisStore handles Redis operations: the shared client for pub/sub and
// rate limiting, and a short-lived cache of room info polled by viewers.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client. Safe on a nil store.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomInfoKey returns the key for a room's cached info.
func roomInfoKey(roomID string) string {
	return fmt.Sprintf("room:%s:info", roomID)
}

// GetRoomInfo returns the cached room, or nil on a miss.
func (s *RedisStore) GetRoomInfo(ctx context.Context, roomID string) (*models.Room, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, roomInfoKey(roomID)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, nil
	}
	return &room, nil
}

// SetRoomInfo caches a room for a few seconds.
func (s *RedisStore) SetRoomInfo(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, roomInfoKey(room.ID.String()), data, roomInfoTTL).Err()
}

// InvalidateRoomInfo drops the cached room after a status change.
func (s *RedisStore) InvalidateRoomInfo(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, roomInfoKey(roomID)).Err()
}
