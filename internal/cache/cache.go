// Package cache implements the Action Cache: a two-tier read-through
// cache (in-process memory + a badger-backed shared tier) with TTLs,
// tag/prefix invalidation, and single-flight production.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/pipeline"
	badgerv4 "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"
)

type memEntry struct {
	value    []byte
	expireAt time.Time
}

// Cache implements interfaces.CacheService over a badger.DB shared tier
// namespaced under keyPrefix, plus an in-process memory tier.
type Cache struct {
	db        *badgerv4.DB
	keyPrefix string
	logger    arbor.ILogger

	mu   sync.RWMutex
	mem  map[string]memEntry
	tags map[string]map[string]struct{} // tag -> set of keys

	group singleflight.Group
}

// New constructs a Cache backed by db, namespacing every shared-tier key
// under keyPrefix (e.g. "cache:") so it never collides with the default
// repository's own keys in the same data directory.
func New(db *badgerv4.DB, keyPrefix string, logger arbor.ILogger) *Cache {
	return &Cache{
		db:        db,
		keyPrefix: keyPrefix,
		logger:    logger,
		mem:       make(map[string]memEntry),
		tags:      make(map[string]map[string]struct{}),
	}
}

// GetOrSet returns key's cached value, producing it via fallback on miss.
// Concurrent callers for the same key share one fallback call
// (single-flight).
func (c *Cache) GetOrSet(ctx context.Context, key string, fallback func(ctx context.Context) (any, error), opts interfaces.CacheOptions) (any, error) {
	if v, ok := c.getMemory(key); ok {
		return v, nil
	}
	if v, ok := c.getShared(key); ok {
		c.setMemory(key, v, opts.MemoryTTL)
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.getShared(key); ok {
			return v, nil
		}
		v, err := fallback(ctx)
		if err != nil {
			// A failed fallback never caches a negative result.
			return nil, err
		}
		c.setShared(key, v, opts.TTL, opts.Tags)
		c.setMemory(key, v, opts.MemoryTTL)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	err := c.db.Update(func(txn *badgerv4.Txn) error {
		return txn.Delete([]byte(c.keyPrefix + key))
	})
	if err != nil && err != badgerv4.ErrKeyNotFound {
		return pipeline.RepositoryFailure("cache.Delete", err)
	}
	return nil
}

// InvalidateByPattern removes every key sharing prefix in both tiers.
func (c *Cache) InvalidateByPattern(ctx context.Context, prefix string) (int, error) {
	count := 0

	c.mu.Lock()
	for k := range c.mem {
		if hasPrefix(k, prefix) {
			delete(c.mem, k)
		}
	}
	c.mu.Unlock()

	err := c.db.Update(func(txn *badgerv4.Txn) error {
		it := txn.NewIterator(badgerv4.DefaultIteratorOptions)
		defer it.Close()

		fullPrefix := []byte(c.keyPrefix + prefix)
		var toDelete [][]byte
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			key := append([]byte{}, it.Item().Key()...)
			toDelete = append(toDelete, key)
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, pipeline.RepositoryFailure("cache.InvalidateByPattern", err)
	}
	return count, nil
}

// InvalidateByTag removes every key registered under tag, in both tiers,
// atomically per tier.
func (c *Cache) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	c.mu.Lock()
	keys := c.tags[tag]
	delete(c.tags, tag)
	for k := range keys {
		delete(c.mem, k)
	}
	c.mu.Unlock()

	count := 0
	err := c.db.Update(func(txn *badgerv4.Txn) error {
		for k := range keys {
			if err := txn.Delete([]byte(c.keyPrefix + k)); err != nil && err != badgerv4.ErrKeyNotFound {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, pipeline.RepositoryFailure("cache.InvalidateByTag", err)
	}
	return count, nil
}

// Sweep evicts every expired memory-tier entry and returns the count
// removed. The memory tier otherwise only expires lazily on read, so a
// key nobody looks up again would sit in c.mem forever; periodic sweeping
// bounds that. The badger shared tier expires its own entries via
// WithTTL and needs no equivalent pass.
func (c *Cache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, entry := range c.mem {
		if !entry.expireAt.IsZero() && now.After(entry.expireAt) {
			delete(c.mem, k)
			removed++
		}
	}
	return removed
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (c *Cache) getMemory(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expireAt.IsZero() && time.Now().After(entry.expireAt) {
		c.mu.Lock()
		delete(c.mem, key)
		c.mu.Unlock()
		return nil, false
	}
	var v any
	if err := json.Unmarshal(entry.value, &v); err != nil {
		return nil, false
	}
	return v, true
}

// setMemory stores value in the memory tier. A TTL of zero means no
// expiry; monotonic TTL semantics are preserved by always taking
// the later of any existing expiry and the new one.
func (c *Cache) setMemory(key string, value any, ttl time.Duration) {
	body, err := json.Marshal(value)
	if err != nil {
		return
	}

	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.mem[key]; ok && !expireAt.IsZero() && (existing.expireAt.IsZero() || existing.expireAt.After(expireAt)) {
		expireAt = existing.expireAt
	}
	c.mem[key] = memEntry{value: body, expireAt: expireAt}
}

func (c *Cache) getShared(key string) (any, bool) {
	var body []byte
	err := c.db.View(func(txn *badgerv4.Txn) error {
		item, err := txn.Get([]byte(c.keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			body = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *Cache) setShared(key string, value any, ttl time.Duration, tags []string) {
	body, err := json.Marshal(value)
	if err != nil {
		return
	}

	err = c.db.Update(func(txn *badgerv4.Txn) error {
		entry := badgerv4.NewEntry([]byte(c.keyPrefix+key), body)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to write shared cache entry")
		}
		return
	}

	if len(tags) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		if c.tags[tag] == nil {
			c.tags[tag] = make(map[string]struct{})
		}
		c.tags[tag][key] = struct{}{}
	}
}
