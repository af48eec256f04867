package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/viscontia/expensefx/internal/telemetry"
)

// KeyType partitions cache entries; each type carries its own TTL.
type KeyType string

const (
	KeyCurrentRate          KeyType = "current_rate"
	KeyHistoricalRate       KeyType = "historical_rate"
	KeyConversionCurrent    KeyType = "conversion_current"
	KeyConversionHistorical KeyType = "conversion_historical"
	KeyExpenseRatesBundle   KeyType = "expense_rates_bundle"
	KeyAPIResponse          KeyType = "api_response"
)

// TTL returns the time-to-live for entries of this type.
func (t KeyType) TTL() time.Duration {
	switch t {
	case KeyCurrentRate:
		return time.Hour
	case KeyHistoricalRate, KeyConversionHistorical, KeyExpenseRatesBundle:
		return 24 * time.Hour
	case KeyConversionCurrent:
		return 30 * time.Minute
	case KeyAPIResponse:
		return 15 * time.Minute
	}
	return time.Hour
}

type entry struct {
	value        any
	insertedAt   time.Time
	ttl          time.Duration
	accessCount  int64
	lastAccessed time.Time
	keyType      KeyType
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Snapshot is a point-in-time view of the cache for the metrics endpoint.
type Snapshot struct {
	Entries        int            `json:"entries"`
	ByType         map[string]int `json:"by_type"`
	HitRate        float64        `json:"hit_rate"`
	MemoryEstimate int64          `json:"memory_estimate_bytes"`
	HitCount       int64          `json:"hit_count"`
	MissCount      int64          `json:"miss_count"`
	WarmingStatus  string         `json:"warming_status"`
	OldestInserted *time.Time     `json:"oldest_inserted,omitempty"`
	NewestInserted *time.Time     `json:"newest_inserted,omitempty"`
}

// RateCache is the process-global, TTL-bounded cache for rates and
// conversion results. Map mutations happen under a single lock; producers
// run outside it, coalesced per key by a single-flight group.
type RateCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int

	flight singleflight.Group

	hits    int64
	misses  int64
	warming string

	log     *zap.Logger
	metrics *telemetry.Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a cache bounded to capacity entries.
func New(capacity int, log *zap.Logger, metrics *telemetry.Metrics) *RateCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateCache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		warming:  "cold",
		log:      log,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
	}
}

func compositeKey(key string, t KeyType) string {
	return string(t) + ":" + key
}

// Get returns the live value for (key, type). An expired entry is removed
// and reported as a miss.
func (c *RateCache) Get(key string, t KeyType) (any, bool) {
	ck := compositeKey(key, t)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ck]
	if !ok {
		c.misses++
		c.metrics.CacheMiss()
		return nil, false
	}
	if e.expired(now) {
		delete(c.entries, ck)
		c.misses++
		c.metrics.CacheMiss()
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.hits++
	c.metrics.CacheHit()
	return e.value, true
}

// Set stores value under (key, type), evicting the least-recently-accessed
// entry when at capacity.
func (c *RateCache) Set(key string, t KeyType, value any) {
	ck := compositeKey(key, t)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[ck]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[ck] = &entry{
		value:        value,
		insertedAt:   now,
		ttl:          t.TTL(),
		lastAccessed: now,
		keyType:      t,
	}
}

// evictOldestLocked removes the entry with the oldest lastAccessed.
func (c *RateCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.lastAccessed.Before(oldest) {
			oldestKey = k
			oldest = e.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// GetOrCompute returns the cached value or runs producer exactly once per
// key across concurrent callers, storing and sharing its result.
func (c *RateCache) GetOrCompute(ctx context.Context, key string, t KeyType, producer func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key, t); ok {
		return v, nil
	}

	ck := compositeKey(key, t)
	v, err, _ := c.flight.Do(ck, func() (any, error) {
		// A concurrent caller may have completed while this one queued.
		if v, ok := c.Get(key, t); ok {
			return v, nil
		}
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, t, v)
		return v, nil
	})
	return v, err
}

// Invalidate removes entries matching pattern (substring of the key) and
// type. Empty pattern and empty type clears everything. Returns the number
// of entries removed.
func (c *RateCache) Invalidate(pattern string, t KeyType) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" && t == "" {
		n := len(c.entries)
		c.entries = make(map[string]*entry)
		return n
	}

	removed := 0
	for ck, e := range c.entries {
		if t != "" && e.keyType != t {
			continue
		}
		if pattern != "" && !strings.Contains(ck, pattern) {
			continue
		}
		delete(c.entries, ck)
		removed++
	}
	return removed
}

// Warm pre-seeds current-rate entries from a caller-supplied snapshot of
// (from, to) keys to values.
func (c *RateCache) Warm(rates map[string]any) {
	for key, value := range rates {
		c.Set(key, KeyCurrentRate, value)
	}
	c.mu.Lock()
	c.warming = "warmed"
	c.mu.Unlock()
}

// Metrics returns a snapshot for the metrics endpoint.
func (c *RateCache) Metrics() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Entries:       len(c.entries),
		ByType:        make(map[string]int),
		HitCount:      c.hits,
		MissCount:     c.misses,
		WarmingStatus: c.warming,
	}
	var oldest, newest time.Time
	for ck, e := range c.entries {
		snap.ByType[string(e.keyType)]++
		// Rough per-entry cost: key bytes plus bookkeeping.
		snap.MemoryEstimate += int64(len(ck)) + 96
		if oldest.IsZero() || e.insertedAt.Before(oldest) {
			oldest = e.insertedAt
		}
		if e.insertedAt.After(newest) {
			newest = e.insertedAt
		}
	}
	if !oldest.IsZero() {
		snap.OldestInserted = &oldest
		snap.NewestInserted = &newest
	}
	if total := c.hits + c.misses; total > 0 {
		snap.HitRate = float64(c.hits) / float64(total)
	}
	return snap
}

// StartHousekeeper launches the periodic purge of expired entries.
func (c *RateCache) StartHousekeeper(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.purgeExpired()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the housekeeper and waits for it.
func (c *RateCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *RateCache) purgeExpired() {
	now := time.Now()

	c.mu.Lock()
	purged := 0
	for ck, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, ck)
			purged++
		}
	}
	size := len(c.entries)
	hits, misses := c.hits, c.misses
	c.mu.Unlock()

	c.metrics.SetCacheEntries(size)
	c.log.Debug("cache housekeeping",
		zap.Int("purged", purged),
		zap.Int("entries", size),
		zap.Int64("hits", hits),
		zap.Int64("misses", misses),
	)
}
