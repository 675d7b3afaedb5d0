package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"notebookrag/internal/model"
)

// MemoryHistoryCache is the in-process stand-in for HistoryCache when redis
// is disabled. Same keys and semantics.
type MemoryHistoryCache struct {
	store          *gocache.Cache
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewMemoryHistoryCache(historyTTL, dirtyMarkerTTL time.Duration) *MemoryHistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &MemoryHistoryCache{
		store:          gocache.New(historyTTL, 2*historyTTL),
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *MemoryHistoryCache) GetHistory(_ context.Context, sessionID string) ([]model.ChatMessage, bool, error) {
	x, found := c.store.Get(historyKey(sessionID))
	if !found {
		return nil, false, nil
	}
	cached := x.([]model.ChatMessage)
	out := make([]model.ChatMessage, len(cached))
	copy(out, cached)
	return out, true, nil
}

func (c *MemoryHistoryCache) SetHistory(_ context.Context, sessionID string, messages []model.ChatMessage) error {
	stored := make([]model.ChatMessage, len(messages))
	copy(stored, messages)
	c.store.Set(historyKey(sessionID), stored, c.historyTTL)
	return nil
}

func (c *MemoryHistoryCache) DeleteHistory(_ context.Context, sessionID string) error {
	c.store.Delete(historyKey(sessionID))
	return nil
}

func (c *MemoryHistoryCache) MarkDirty(_ context.Context, sessionID string) error {
	c.store.Set(dirtyKey(sessionID), true, c.dirtyMarkerTTL)
	return nil
}

func (c *MemoryHistoryCache) IsDirty(_ context.Context, sessionID string) (bool, error) {
	_, found := c.store.Get(dirtyKey(sessionID))
	return found, nil
}
