package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const roomKeyPrefix = "gophtalk:room:"

// redisClient is the subset of *redis.Client used by RedisRoomCache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisRoomCache is a RoomCache backed by Redis with a fixed TTL.
type RedisRoomCache struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisRoomCache wraps an existing client.
func NewRedisRoomCache(client redisClient, ttl time.Duration) *RedisRoomCache {
	return &RedisRoomCache{client: client, ttl: ttl}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// Get returns the cached room or (nil, nil) when it is not cached.
func (c *RedisRoomCache) Get(ctx context.Context, id string) (*models.Room, error) {
	s, err := c.client.Get(ctx, roomKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	room := &models.Room{}
	if err := json.Unmarshal([]byte(s), room); err != nil {
		return nil, fmt.Errorf("decode cached room: %w", err)
	}
	return room, nil
}

// Set caches room under its id.
func (c *RedisRoomCache) Set(ctx context.Context, room *models.Room) error {
	b, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	return c.client.Set(ctx, roomKeyPrefix+room.ID, b, c.ttl).Err()
}
