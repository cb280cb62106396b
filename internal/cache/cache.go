// Package cache holds the in-memory view of recently scraped orders.
//
// The cache only accelerates change detection. Losing it never loses data:
// it is rebuilt from the next scrape and, optionally, from the durable store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/storage"
)

// Entry is a cached order plus the last time a scrape or import touched it.
type Entry struct {
	domain.ServiceOrder
	LastRefreshedAt int64 `json:"last_refreshed_at"` // epoch ms
}

// RefreshedAt returns LastRefreshedAt as a time.
func (e Entry) RefreshedAt() time.Time {
	return time.UnixMilli(e.LastRefreshedAt)
}

// snapshot is the persisted layout.
type snapshot struct {
	Timestamp int64            `json:"timestamp"` // epoch ms
	Entries   map[string]Entry `json:"entries"`
}

// RecordCache maps order numbers to their latest scraped state with a TTL.
type RecordCache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	store storage.SnapshotStore
	clock clock.Clock
	ttl   time.Duration
}

// New creates an empty cache persisted through store.
func New(store storage.SnapshotStore, c clock.Clock, ttl time.Duration) *RecordCache {
	if c == nil {
		c = clock.System{}
	}
	return &RecordCache{
		entries: make(map[string]Entry),
		store:   store,
		clock:   c,
		ttl:     ttl,
	}
}

// Load installs the persisted snapshot when it is younger than the TTL.
// Any read or decode failure leaves the cache empty; it never returns an error.
func (c *RecordCache) Load(ctx context.Context) (int, bool) {
	log := logger.FromContext(ctx)

	data, err := c.store.Read(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).Warn("cache snapshot unreadable, starting empty")
		}
		return 0, false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.WithError(err).Warn("cache snapshot corrupt, starting empty")
		return 0, false
	}

	age := c.clock.Now().Sub(time.UnixMilli(snap.Timestamp))
	if age >= c.ttl {
		log.Infof("cache snapshot expired (%s old, ttl %s), starting empty", age.Round(time.Second), c.ttl)
		return 0, false
	}

	entries := make(map[string]Entry, len(snap.Entries))
	for key, e := range snap.Entries {
		if e.OrderNumber == "" {
			e.OrderNumber = key
		}
		if e.LastRefreshedAt == 0 {
			e.LastRefreshedAt = snap.Timestamp
		}
		entries[key] = e
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	log.Infof("cache loaded with %d records (%s old)", len(entries), age.Round(time.Second))
	return len(entries), true
}

// Get returns the cached entry for key.
func (c *RecordCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores order with a fresh refresh time, replacing any prior entry.
func (c *RecordCache) Put(order domain.ServiceOrder) {
	e := Entry{ServiceOrder: order, LastRefreshedAt: c.clock.Now().UnixMilli()}
	c.mu.Lock()
	c.entries[order.OrderNumber] = e
	c.mu.Unlock()
}

// EvictExpired drops entries not refreshed within the TTL and returns how many.
func (c *RecordCache) EvictExpired() int {
	cutoff := c.clock.Now().Add(-c.ttl).UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.LastRefreshedAt < cutoff {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// ImportFromStore adds durable rows that are not cached yet and returns how many.
func (c *RecordCache) ImportFromStore(rows []domain.ServiceOrder) int {
	now := c.clock.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, row := range rows {
		if _, ok := c.entries[row.OrderNumber]; ok {
			continue
		}
		c.entries[row.OrderNumber] = Entry{ServiceOrder: row, LastRefreshedAt: now}
		added++
	}
	return added
}

// Save writes the whole cache stamped with the current time.
func (c *RecordCache) Save(ctx context.Context) error {
	c.mu.RLock()
	snap := snapshot{
		Timestamp: c.clock.Now().UnixMilli(),
		Entries:   make(map[string]Entry, len(c.entries)),
	}
	for k, v := range c.entries {
		snap.Entries[k] = v
	}
	c.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	if err := c.store.Write(ctx, data); err != nil {
		return err
	}
	logger.CtxDebug(ctx, "cache saved with %d records", len(snap.Entries))
	return nil
}

// Clear empties the cache and persists the empty state.
func (c *RecordCache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return n, c.Save(ctx)
}

// Len returns the number of cached orders.
func (c *RecordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Orders returns a copy of every cached order sorted by order number.
func (c *RecordCache) Orders() []domain.ServiceOrder {
	c.mu.RLock()
	out := make([]domain.ServiceOrder, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.ServiceOrder)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}
