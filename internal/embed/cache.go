package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// TableCache caches loaded tables for the lifetime of the process, keyed by
// the set of source paths that produced them. A table stays cached until
// the source path set changes or Invalidate is called (e.g. after a source
// file is rewritten on disk).
type TableCache struct {
	mu     sync.RWMutex
	tables map[string]*Table
	hits   int64
	misses int64
}

// NewTableCache creates an empty TableCache.
func NewTableCache() *TableCache {
	return &TableCache{tables: make(map[string]*Table)}
}

// Key derives the cache key for a source path set. Path order does not
// matter.
func (c *TableCache) Key(paths []string) string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h[:])
}

// Get returns the cached table for the path set, if present.
func (c *TableCache) Get(paths []string) (*Table, bool) {
	key := c.Key(paths)

	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tables[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return t, ok
}

// Put stores a table for the path set, replacing any previous entry.
func (c *TableCache) Put(paths []string, t *Table) {
	key := c.Key(paths)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[key] = t
}

// Invalidate drops the cached table for the path set.
func (c *TableCache) Invalidate(paths []string) {
	key := c.Key(paths)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, key)
}

// Clear drops all cached tables.
func (c *TableCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = make(map[string]*Table)
}

// Stats returns hit and miss counts since creation.
func (c *TableCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
