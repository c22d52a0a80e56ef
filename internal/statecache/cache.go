// Package statecache provides the in-memory unit state cache.
//
// The cache is a read-through layer over classification: dashboard and
// hierarchy reads hit it first and fall back to recomputation on miss.
// Entries carry a TTL so a crashed worker can never pin a stale state
// forever, and the cache is capacity-bounded so an unbounded unit fleet
// cannot exhaust process memory. It holds derived data only; losing the
// entire cache is a performance event, not a correctness event.
package statecache

import (
	"hash/fnv"
	"sync"
	"time"

	"freshtrack/internal/types"
)

// shardCount spreads lock contention across independent mutexes. Power of
// two so the hash can be masked.
const shardCount = 16

// Config tunes the cache. Zero values fall back to the documented defaults.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

type entry struct {
	state    types.UnitState
	storedAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Cache is a sharded, TTL-bounded, capacity-bounded map from unit ID to the
// unit's last computed state. Safe for concurrent use.
type Cache struct {
	shards [shardCount]*shard
	ttl    time.Duration
	// maxPerShard bounds each shard so the total stays near MaxEntries.
	maxPerShard int
	clock       types.Clock
}

// New builds a cache. The clock is injected so expiry and eviction are
// testable without sleeping.
func New(cfg Config, clock types.Clock) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	c := &Cache{
		ttl:         cfg.TTL,
		maxPerShard: (cfg.MaxEntries + shardCount - 1) / shardCount,
		clock:       clock,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return c
}

func (c *Cache) shardFor(unitID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(unitID))
	return c.shards[h.Sum32()&(shardCount-1)]
}

// Get returns the cached state for a unit. The second return is false on
// miss or on an expired entry; expired entries are left for the sweeper.
func (c *Cache) Get(unitID string) (types.UnitState, bool) {
	s := c.shardFor(unitID)
	s.mu.RLock()
	e, ok := s.entries[unitID]
	s.mu.RUnlock()
	if !ok {
		return types.UnitState{}, false
	}
	if c.clock.Now().Sub(e.storedAt) > c.ttl {
		return types.UnitState{}, false
	}
	return e.state, true
}

// Put stores a state. When the shard is at capacity and the unit is not
// already present, the entry with the oldest storedAt is evicted first;
// recently refreshed units are the ones a dashboard is actually watching.
func (c *Cache) Put(state types.UnitState) {
	s := c.shardFor(state.UnitID)
	now := c.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[state.UnitID]; !ok && len(s.entries) >= c.maxPerShard {
		evictOldestLocked(s)
	}
	s.entries[state.UnitID] = entry{state: state, storedAt: now}
}

// Invalidate drops a unit's entry, forcing the next read to recompute.
// Called when a rule changes so the old thresholds stop serving reads.
func (c *Cache) Invalidate(unitID string) {
	s := c.shardFor(unitID)
	s.mu.Lock()
	delete(s.entries, unitID)
	s.mu.Unlock()
}

// Len returns the current number of entries, expired or not.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Sweep removes expired entries and returns how many were dropped. Each
// shard is locked independently so readers on other shards never stall
// behind the sweep.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if now.Sub(e.storedAt) > c.ttl {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// evictOldestLocked removes the entry with the oldest storedAt. Caller holds
// the shard lock.
func evictOldestLocked(s *shard) {
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, e := range s.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.storedAt
			first = false
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
	}
}
