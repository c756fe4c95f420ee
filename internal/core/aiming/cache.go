package aiming

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/ballistics/internal/core/systems/ballistics"
)

const (
	defaultShardCount = 16
	defaultShardSize  = 1024
)

// Cache memoizes solver results keyed by the exact bits of the query.
// Each shard has its own lock; a full shard drops an arbitrary entry.
type Cache struct {
	shards   []cacheShard
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheShard struct {
	mx      sync.RWMutex
	entries map[uint64]cacheEntry
}

type cacheEntry struct {
	query  ballistics.Query
	result ballistics.Result
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

func NewCache(shardCount, capacityPerShard int) *Cache {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	if capacityPerShard <= 0 {
		capacityPerShard = defaultShardSize
	}

	c := &Cache{
		shards:   make([]cacheShard, shardCount),
		capacity: capacityPerShard,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[uint64]cacheEntry)
	}
	return c
}

func queryKey(q ballistics.Query) uint64 {
	var buf [10 * 8]byte
	for i, f := range [...]float64{
		q.Target.X, q.Target.Y, q.Target.Z,
		q.Origin.X, q.Origin.Y, q.Origin.Z,
		q.Gravity.X, q.Gravity.Y, q.Gravity.Z,
		q.Speed,
	} {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return xxhash.Sum64(buf[:])
}

func (c *Cache) shard(key uint64) *cacheShard {
	return &c.shards[key%uint64(len(c.shards))]
}

// Get returns the cached result for q, if present.
func (c *Cache) Get(q ballistics.Query) (ballistics.Result, bool) {
	key := queryKey(q)
	s := c.shard(key)

	s.mx.RLock()
	entry, ok := s.entries[key]
	s.mx.RUnlock()

	if !ok || entry.query != q {
		c.misses.Add(1)
		return ballistics.Result{}, false
	}
	c.hits.Add(1)
	return entry.result, true
}

func (c *Cache) Put(q ballistics.Query, r ballistics.Result) {
	key := queryKey(q)
	s := c.shard(key)

	s.mx.Lock()
	defer s.mx.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= c.capacity {
		for victim := range s.entries {
			delete(s.entries, victim)
			break
		}
	}
	s.entries[key] = cacheEntry{query: q, result: r}
}

func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mx.RLock()
		n += len(c.shards[i].entries)
		c.shards[i].mx.RUnlock()
	}
	return n
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.Len()}
}
