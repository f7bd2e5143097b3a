package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Key identifies a cached query: procedure name plus encoded input.
type Key string

// KeyFor builds the cache key of procedure called with input.
func KeyFor(procedure string, input any) Key {
	if input == nil {
		return Key(procedure)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return Key(procedure)
	}
	return Key(procedure + "?" + string(raw))
}

// Procedure returns the procedure part of the key.
func (k Key) Procedure() string {
	name, _, _ := strings.Cut(string(k), "?")
	return name
}

type entry struct {
	data      any
	hasData   bool
	updatedAt time.Time
	stale     bool

	// fetch is the token of the in-flight fetch allowed to write the entry.
	fetch  uint64
	cancel context.CancelFunc
}

// Snapshot is a saved cache value used to roll back an optimistic write.
type Snapshot struct {
	data    any
	hasData bool
}

// Cache stores query results with per-read staleness. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	seq     uint64
	now     func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
}

func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Get returns the cached value for key, fresh or not.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Fetch returns the cached value when it is younger than staleTime and not
// invalidated; otherwise it calls fn and stores the result. A fetch that is
// cancelled or superseded while running never writes to the cache.
func (c *Cache) Fetch(ctx context.Context, key Key, staleTime time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	if e.hasData && !e.stale && c.now().Sub(e.updatedAt) < staleTime {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}

	if e.cancel != nil {
		e.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.seq++
	token := c.seq
	e.fetch = token
	e.cancel = cancel
	c.mu.Unlock()

	data, err := fn(fetchCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()

	e = c.entry(key)
	current := e.fetch == token
	if current {
		e.fetch = 0
		e.cancel = nil
	}
	if err != nil {
		if !current && e.hasData {
			return e.data, nil
		}
		return nil, err
	}
	if !current {
		// A write happened while we were in flight; it wins.
		if e.hasData {
			return e.data, nil
		}
		return data, nil
	}

	e.data = data
	e.hasData = true
	e.stale = false
	e.updatedAt = c.now()
	return data, nil
}

// Cancel aborts any in-flight fetch for key so its result is dropped.
func (c *Cache) Cancel(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.fetch = 0
}

// Snapshot saves the current value of key.
func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{data: e.data, hasData: e.hasData}
}

// Restore puts a snapshot back, removing the value if there was none.
func (c *Cache) Restore(key Key, s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.data = s.data
	e.hasData = s.hasData
	e.fetch = 0
}

// Set replaces the value of key.
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.data = data
	e.hasData = true
	e.updatedAt = c.now()
	e.fetch = 0
}

// Update replaces the value of key with fn(old) when key holds a value.
// fn must not modify old in place; snapshots share it.
func (c *Cache) Update(key Key, fn func(old any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return false
	}
	e.data = fn(e.data)
	e.updatedAt = c.now()
	e.fetch = 0
	return true
}

// Remove drops key from the cache.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.cancel != nil {
		e.cancel()
	}
	delete(c.entries, key)
}

// Invalidate marks keys stale so the next Fetch goes to the server.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			e.stale = true
		}
	}
}

// InvalidateProcedure marks every key of procedure stale.
func (c *Cache) InvalidateProcedure(procedure string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Procedure() == procedure {
			e.stale = true
		}
	}
}

// InvalidateAll marks every key stale.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
}

// Clear drops everything, cancelling in-flight fetches.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	c.entries = make(map[Key]*entry)
}
