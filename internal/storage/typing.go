package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TypingStore keeps "is typing" markers in Redis. Each marker expires on its
// own after TTL so a client that never sends typingStop is eventually cleared.
type TypingStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

// NewTypingStore Constructor
func NewTypingStore(rdb *redis.Client, ttl time.Duration) *TypingStore {
	return &TypingStore{Redis: rdb, TTL: ttl}
}

func typingKey(roomID, senderName string) string {
	return "typing:" + roomID + ":" + senderName
}

// SetTyping records or clears the marker for (room, sender). Last write wins.
func (t *TypingStore) SetTyping(ctx context.Context, roomID, senderName string, typing bool) error {
	key := typingKey(roomID, senderName)
	if !typing {
		return t.Redis.Del(ctx, key).Err()
	}
	return t.Redis.Set(ctx, key, time.Now().UTC().Unix(), t.TTL).Err()
}

// IsTyping reports whether a live marker exists for (room, sender).
func (t *TypingStore) IsTyping(ctx context.Context, roomID, senderName string) (bool, error) {
	n, err := t.Redis.Exists(ctx, typingKey(roomID, senderName)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
