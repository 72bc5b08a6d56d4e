package storage_test

import (
	"accord/backend/internal/models"
	"accord/backend/internal/storage"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis tests need a server on localhost:6379 and are skipped otherwise.
const testRedisAddr = "localhost:6379"

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testRedisAddr, 2*time.Second)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	conn.Close()

	rdb := redis.NewClient(&redis.Options{Addr: testRedisAddr, DB: 15})
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}

// countingStore is a Storage whose analysis lookups are counted.
type countingStore struct {
	storage.Storage
	mu       sync.Mutex
	analyses map[string]*models.AnalysisResult
	gets     atomic.Int32
	delay    time.Duration
}

func (c *countingStore) GetLatestAnalysis(_ context.Context, chatID string) (*models.AnalysisResult, error) {
	c.gets.Add(1)
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyses[chatID], nil
}

func (c *countingStore) SaveAnalysis(_ context.Context, result *models.AnalysisResult) error {
	if result.RoomID == "broken" {
		return errors.New("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyses[result.RoomID] = result
	return nil
}

func TestCachedStorage_ReadThroughAndInvalidate(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	inner := &countingStore{analyses: map[string]*models.AnalysisResult{
		"general": {RoomID: "general", AnalysisText: "v1", ProducedAt: time.Now().UTC()},
	}}
	cached := storage.NewCachedStorage(inner, rdb, time.Minute, zerolog.Nop())

	got, err := cached.GetLatestAnalysis(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.AnalysisText)

	got, err = cached.GetLatestAnalysis(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.AnalysisText)
	assert.EqualValues(t, 1, inner.gets.Load(), "second read is served from Redis")

	require.NoError(t, cached.SaveAnalysis(ctx, &models.AnalysisResult{RoomID: "general", AnalysisText: "v2"}))
	got, err = cached.GetLatestAnalysis(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.AnalysisText)
	assert.EqualValues(t, 2, inner.gets.Load())
}

func TestCachedStorage_MissingIsNotCached(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	inner := &countingStore{analyses: map[string]*models.AnalysisResult{}}
	cached := storage.NewCachedStorage(inner, rdb, time.Minute, zerolog.Nop())

	got, err := cached.GetLatestAnalysis(ctx, "empty")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := rdb.Exists(ctx, "analysis:empty").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCachedStorage_ConcurrentMissesShareOneQuery(t *testing.T) {
	rdb := newTestRedis(t)
	inner := &countingStore{
		analyses: map[string]*models.AnalysisResult{"busy": {RoomID: "busy", AnalysisText: "x"}},
		delay:    100 * time.Millisecond,
	}
	cached := storage.NewCachedStorage(inner, rdb, time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cached.GetLatestAnalysis(context.Background(), "busy")
			assert.NoError(t, err)
			assert.Equal(t, "x", got.AnalysisText)
		}()
	}
	wg.Wait()
	assert.Less(t, inner.gets.Load(), int32(10))
}

func TestCachedStorage_SaveFailureKeepsCache(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	inner := &countingStore{analyses: map[string]*models.AnalysisResult{}}
	cached := storage.NewCachedStorage(inner, rdb, time.Minute, zerolog.Nop())
	require.NoError(t, rdb.Set(ctx, "analysis:broken", `{"roomId":"broken","analysis":"old"}`, time.Minute).Err())

	assert.Error(t, cached.SaveAnalysis(ctx, &models.AnalysisResult{RoomID: "broken", AnalysisText: "new"}))

	got, err := cached.GetLatestAnalysis(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, "old", got.AnalysisText)
}

func TestTypingStore_SetClearExpire(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	store := storage.NewTypingStore(rdb, time.Second)

	require.NoError(t, store.SetTyping(ctx, "general", "Alice", true))
	typing, err := store.IsTyping(ctx, "general", "Alice")
	require.NoError(t, err)
	assert.True(t, typing)

	require.NoError(t, store.SetTyping(ctx, "general", "Alice", false))
	typing, err = store.IsTyping(ctx, "general", "Alice")
	require.NoError(t, err)
	assert.False(t, typing)

	require.NoError(t, store.SetTyping(ctx, "general", "Bob", true))
	assert.Eventually(t, func() bool {
		typing, err := store.IsTyping(ctx, "general", "Bob")
		return err == nil && !typing
	}, 3*time.Second, 100*time.Millisecond)
}
