package store

import (
	"sync"
	"time"

	"undercover-arena/internal/game"
)

// sessionCache keeps recently touched sessions in memory so reads during an
// active game skip the database. Entries expire after the TTL and are
// refreshed on every write-through; the database stays the source of truth
// on any miss.
type sessionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	sess    *game.Session
	expires time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionCache{ttl: ttl, entries: map[string]cacheEntry{}}
}

func (c *sessionCache) get(id string) *game.Session {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil
	}
	return e.sess.Clone()
}

func (c *sessionCache) put(s *game.Session) {
	c.mu.Lock()
	c.entries[s.ID] = cacheEntry{sess: s.Clone(), expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *sessionCache) drop(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
