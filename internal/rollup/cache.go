package rollup

import (
	"context"
	"sync"

	"notedb/internal/domain"
)

// Loader fetches a database. domain.RowStore satisfies it.
type Loader interface {
	GetDatabase(ctx context.Context, id string) (*domain.Database, error)
}

// Cache is a read-through cache of target databases keyed by database id.
// Entries live until invalidated; failed loads are not cached. A load that
// overlaps an Invalidate or Reset for its key is returned but not stored.
type Cache struct {
	loader Loader

	mu      sync.Mutex
	entries map[string]*domain.Database
	gens    map[string]uint64
	epoch   uint64
}

// NewCache creates a Cache reading through loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*domain.Database),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached database, loading it on a miss.
func (c *Cache) Get(ctx context.Context, dbID string) (*domain.Database, error) {
	c.mu.Lock()
	db, ok := c.entries[dbID]
	gen, epoch := c.gens[dbID], c.epoch
	c.mu.Unlock()
	if ok {
		return db, nil
	}

	db, err := c.loader.GetDatabase(ctx, dbID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gens[dbID] == gen && c.epoch == epoch {
		c.entries[dbID] = db
	}
	c.mu.Unlock()
	return db, nil
}

// Invalidate drops the entry for dbID and discards any load of it that is
// still in flight.
func (c *Cache) Invalidate(dbID string) {
	c.mu.Lock()
	delete(c.entries, dbID)
	c.gens[dbID]++
	c.mu.Unlock()
}

// Reset drops every entry and discards every in-flight load.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*domain.Database)
	c.epoch++
	c.mu.Unlock()
}

// Cached reports whether dbID currently has an entry.
func (c *Cache) Cached(dbID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[dbID]
	return ok
}
