// Package flags caches feature flags loaded from the store.
package flags

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"mentionscan/internal/ports"
)

// PremiumEnrichment gates the post-scan enrichment workflow.
const PremiumEnrichment = "premium_enrichment"

const DefaultTTL = time.Minute

// Cache holds the last loaded flag set until it is older than TTL or
// explicitly invalidated.
type Cache struct {
	repo  ports.FlagRepository
	clock clockwork.Clock
	ttl   time.Duration

	mu       sync.Mutex
	values   map[string]bool
	loadedAt time.Time
}

func NewCache(repo ports.FlagRepository, clock clockwork.Clock, ttl time.Duration) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{repo: repo, clock: clock, ttl: ttl}
}

// Enabled reports whether name is on. Unknown flags are off. When a reload
// fails the stale values are kept and the error is returned alongside them.
func (c *Cache) Enabled(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.values == nil || c.clock.Since(c.loadedAt) >= c.ttl {
		values, err := c.repo.LoadFlags(ctx)
		if err != nil {
			return c.values[name], err
		}
		c.values = values
		c.loadedAt = c.clock.Now()
	}
	return c.values[name], nil
}

// Invalidate forces the next lookup to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.values = nil
	c.mu.Unlock()
}
