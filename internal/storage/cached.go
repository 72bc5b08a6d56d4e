package storage

import (
	"accord/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CachedStorage adds a Redis cache-aside layer for room analyses to any
// Storage. Redis failures degrade to the wrapped store and are only logged.
type CachedStorage struct {
	Storage

	Redis *redis.Client
	TTL   time.Duration

	log     zerolog.Logger
	sfGroup singleflight.Group
}

// NewCachedStorage wraps inner with an analysis cache kept for ttl.
func NewCachedStorage(inner Storage, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedStorage {
	return &CachedStorage{
		Storage: inner,
		Redis:   rdb,
		TTL:     ttl,
		log:     log,
	}
}

func analysisKey(chatID string) string {
	return "analysis:" + chatID
}

// GetLatestAnalysis reads through the cache. Concurrent misses for the same
// chat share one database query.
func (c *CachedStorage) GetLatestAnalysis(ctx context.Context, chatID string) (*models.AnalysisResult, error) {
	key := analysisKey(chatID)

	raw, err := c.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached models.AnalysisResult
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return &cached, nil
		}
		c.log.Warn().Str("chat_id", chatID).Msg("dropping undecodable cached analysis")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("analysis cache read failed")
	}

	val, err, _ := c.sfGroup.Do(key, func() (any, error) {
		return c.Storage.GetLatestAnalysis(ctx, chatID)
	})
	if err != nil {
		return nil, err
	}
	result, _ := val.(*models.AnalysisResult)
	if result == nil {
		return nil, nil
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := c.Redis.Set(ctx, key, payload, c.TTL).Err(); err != nil {
			c.log.Warn().Err(err).Str("chat_id", chatID).Msg("analysis cache write failed")
		}
	}
	return result, nil
}

// SaveAnalysis writes through to the wrapped store and drops the cache entry.
func (c *CachedStorage) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	if err := c.Storage.SaveAnalysis(ctx, result); err != nil {
		return err
	}
	if err := c.Redis.Del(ctx, analysisKey(result.RoomID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("chat_id", result.RoomID).Msg("analysis cache invalidation failed")
	}
	return nil
}
