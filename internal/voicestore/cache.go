package voicestore

import (
	"context"
	"sync"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// Cache is a read-through cache of List in front of another store. Any
// successful Save or Delete drops the cached list.
type Cache struct {
	store domain.VoiceStore
	log   *logger.Logger

	mu     sync.Mutex
	voices []domain.SavedVoice
	valid  bool
	gen    uint64 // bumped by Invalidate
	hits   int64
	misses int64
}

var _ domain.VoiceStore = (*Cache)(nil)

// NewCache wraps store.
func NewCache(store domain.VoiceStore, log *logger.Logger) *Cache {
	return &Cache{store: store, log: log}
}

// List serves the cached list when present. The returned slice is a copy.
func (c *Cache) List(ctx context.Context) ([]domain.SavedVoice, error) {
	c.mu.Lock()
	if c.valid {
		c.hits++
		out := append([]domain.SavedVoice(nil), c.voices...)
		c.mu.Unlock()
		c.log.Debug("voice cache hit (%d voices)", len(out))
		return out, nil
	}
	c.misses++
	gen := c.gen
	c.mu.Unlock()

	vs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A Save or Delete that finished during the load may not be in vs.
	if c.gen == gen {
		c.voices = append([]domain.SavedVoice(nil), vs...)
		c.valid = true
	}
	c.mu.Unlock()
	return vs, nil
}

func (c *Cache) Save(ctx context.Context, a *domain.Artifact, name, description string) (domain.SavedVoice, error) {
	v, err := c.store.Save(ctx, a, name, description)
	if err == nil {
		c.Invalidate()
	}
	return v, err
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	err := c.store.Delete(ctx, id)
	if err == nil {
		c.Invalidate()
	}
	return err
}

func (c *Cache) CloneWithText(ctx context.Context, id, text string) (domain.CloneOutcome, error) {
	return c.store.CloneWithText(ctx, id, text)
}

// Invalidate forces the next List to go to the store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.voices = nil
	c.valid = false
	c.gen++
	c.mu.Unlock()
	c.log.Debug("voice cache invalidated")
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
