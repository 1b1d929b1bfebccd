package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-pdfqa/internal/model"
)

// HistoryCache keeps each user's computed history windows. A short-lived
// dirty marker is set whenever a new row is written so readers skip the cache
// until the write is visible in the database.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// GetWindows returns the cached windows for userID if they were computed on day.
func (c *HistoryCache) GetWindows(ctx context.Context, userID uint, day string) (*model.HistoryWindows, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(userID)).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var windows model.HistoryWindows
	if err := json.Unmarshal([]byte(raw), &windows); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	if windows.Day != day {
		return nil, false, nil
	}
	return &windows, true, nil
}

func (c *HistoryCache) SetWindows(ctx context.Context, userID uint, windows *model.HistoryWindows) error {
	payload, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(userID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, userID uint) error {
	if err := c.client.Del(ctx, c.historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached windows and marks the user dirty.
func (c *HistoryCache) Invalidate(ctx context.Context, userID uint) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.historyKey(userID))
	pipe.Set(ctx, c.dirtyKey(userID), "1", c.dirtyMarkerTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, userID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(userID uint) string {
	return fmt.Sprintf("pdfqa:history:%d", userID)
}

func (c *HistoryCache) dirtyKey(userID uint) string {
	return fmt.Sprintf("pdfqa:history:dirty:%d", userID)
}
