package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(10, nil, nil)

	c.Set("EUR_USD", KeyCurrentRate, "1.08")
	v, ok := c.Get("EUR_USD", KeyCurrentRate)
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "1.08" {
		t.Errorf("got %v, want 1.08", v)
	}

	// Same key under a different type is a distinct entry.
	if _, ok := c.Get("EUR_USD", KeyHistoricalRate); ok {
		t.Error("key types must not collide")
	}
}

func TestExpiryRemovesEntry(t *testing.T) {
	c := New(10, nil, nil)
	c.Set("EUR_USD", KeyCurrentRate, "1.08")

	// Age the entry past its TTL.
	c.mu.Lock()
	for _, e := range c.entries {
		e.insertedAt = time.Now().Add(-2 * time.Hour)
	}
	c.mu.Unlock()

	if _, ok := c.Get("EUR_USD", KeyCurrentRate); ok {
		t.Fatal("expired entry served")
	}

	// Physically removed, not just hidden.
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("expired entry still stored, %d entries", n)
	}
}

func TestKeyTypeTTLs(t *testing.T) {
	cases := map[KeyType]time.Duration{
		KeyCurrentRate:          time.Hour,
		KeyHistoricalRate:       24 * time.Hour,
		KeyConversionCurrent:    30 * time.Minute,
		KeyConversionHistorical: 24 * time.Hour,
		KeyExpenseRatesBundle:   24 * time.Hour,
		KeyAPIResponse:          15 * time.Minute,
	}
	for kt, want := range cases {
		if got := kt.TTL(); got != want {
			t.Errorf("%s TTL = %v, want %v", kt, got, want)
		}
	}
}

func TestCapacityEvictsOldestAccessed(t *testing.T) {
	c := New(3, nil, nil)

	c.Set("a", KeyCurrentRate, 1)
	c.Set("b", KeyCurrentRate, 2)
	c.Set("c", KeyCurrentRate, 3)

	// Make "a" the most recently accessed so "b" is the eviction victim.
	c.mu.Lock()
	c.entries[compositeKey("a", KeyCurrentRate)].lastAccessed = time.Now().Add(time.Minute)
	c.entries[compositeKey("b", KeyCurrentRate)].lastAccessed = time.Now().Add(-time.Minute)
	c.mu.Unlock()

	c.Set("d", KeyCurrentRate, 4)

	if _, ok := c.Get("b", KeyCurrentRate); ok {
		t.Error("least-recently-accessed entry should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k, KeyCurrentRate); !ok {
			t.Errorf("entry %q unexpectedly evicted", k)
		}
	}
}

func TestInvalidate(t *testing.T) {
	c := New(10, nil, nil)
	c.Set("EUR_USD", KeyCurrentRate, 1)
	c.Set("EUR_ZAR", KeyCurrentRate, 2)
	c.Set("100_EUR_USD", KeyConversionCurrent, 3)

	if n := c.Invalidate("ZAR", ""); n != 1 {
		t.Errorf("pattern invalidate removed %d, want 1", n)
	}
	if n := c.Invalidate("", KeyConversionCurrent); n != 1 {
		t.Errorf("type invalidate removed %d, want 1", n)
	}
	if n := c.Invalidate("", ""); n != 1 {
		t.Errorf("full clear removed %d, want 1", n)
	}
	if snap := c.Metrics(); snap.Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", snap.Entries)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(10, nil, nil)

	var calls int32
	release := make(chan struct{})
	producer := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "1.08", nil
	}

	const readers = 16
	var wg sync.WaitGroup
	results := make([]any, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "EUR_USD", KeyCurrentRate, producer)
			if err != nil {
				t.Errorf("reader %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	// Give the goroutines time to queue on the same key, then release.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("producer ran %d times, want 1", got)
	}
	for i, v := range results {
		if v.(string) != "1.08" {
			t.Errorf("reader %d got %v", i, v)
		}
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(10, nil, nil)

	_, err := c.GetOrCompute(context.Background(), "k", KeyCurrentRate, func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("provider down")
	})
	if err == nil {
		t.Fatal("expected producer error")
	}
	if _, ok := c.Get("k", KeyCurrentRate); ok {
		t.Error("failed produce must not populate the cache")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	c := New(10, nil, nil)
	c.Set("a", KeyCurrentRate, 1)
	c.Set("b", KeyConversionCurrent, 2)

	c.Get("a", KeyCurrentRate)  // hit
	c.Get("zz", KeyCurrentRate) // miss

	snap := c.Metrics()
	if snap.Entries != 2 {
		t.Errorf("entries = %d, want 2", snap.Entries)
	}
	if snap.HitCount != 1 || snap.MissCount != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", snap.HitCount, snap.MissCount)
	}
	if snap.HitRate != 0.5 {
		t.Errorf("hit rate = %f, want 0.5", snap.HitRate)
	}
	if snap.ByType[string(KeyCurrentRate)] != 1 || snap.ByType[string(KeyConversionCurrent)] != 1 {
		t.Errorf("by-type breakdown wrong: %v", snap.ByType)
	}
	if snap.MemoryEstimate <= 0 {
		t.Error("memory estimate should be positive")
	}
	if snap.WarmingStatus != "cold" {
		t.Errorf("warming status = %q, want cold", snap.WarmingStatus)
	}

	c.Warm(map[string]any{"EUR_USD": "1.08"})
	if got := c.Metrics().WarmingStatus; got != "warmed" {
		t.Errorf("warming status after warm = %q", got)
	}
}

func TestHousekeeperPurges(t *testing.T) {
	c := New(10, nil, nil)
	c.Set("a", KeyCurrentRate, 1)

	c.mu.Lock()
	for _, e := range c.entries {
		e.insertedAt = time.Now().Add(-2 * time.Hour)
	}
	c.mu.Unlock()

	c.purgeExpired()

	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("housekeeper left %d expired entries", n)
	}
}
