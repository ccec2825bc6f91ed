// Package analytics implements per-engine accounting: hit/miss/put/delete
// counters, per-key access and size tracking, and the derived summary
// view eviction strategies and callers consult. It is authoritative for
// eviction ordering but is not required to be durable across process
// restarts.
package analytics

import (
	"sync"
	"time"
)

// KeyStats is the per-key bookkeeping analytics maintains: access count,
// last-access time, and estimated size.
type KeyStats struct {
	AccessCount    int64
	LastAccessedAt time.Time
	CreatedAt      time.Time
	EstimatedSize  int
	Priority       int
	ExpiresAt      *time.Time
}

// Event records one recent cache operation in the bounded operation
// history kept by Analytics. Summary does not include this history.
type Event struct {
	Op        string
	Key       string
	Timestamp time.Time
}

// Analytics is the concurrency-safe, per-engine counter and per-key
// tracking store. Never hold its lock across a storage adapter call.
type Analytics struct {
	mu sync.RWMutex

	hitCount    int64
	missCount   int64
	putCount    int64
	deleteCount int64
	clearCount  int64
	totalSize   int64
	maxSizeSeen int64
	startTime   time.Time

	perKey map[string]*KeyStats

	recent       []Event
	recentCap    int
	recentCursor int
}

// New creates an Analytics store with the given bounded recent-operations
// history capacity (0 disables history tracking).
func New(recentCapacity int) *Analytics {
	return &Analytics{
		startTime: time.Now(),
		perKey:    make(map[string]*KeyStats),
		recentCap: recentCapacity,
	}
}

// RecordHit increments hit_count and the per-key access count, and
// refreshes the per-key last-access time.
func (a *Analytics) RecordHit(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hitCount++
	ks := a.keyStatsLocked(key)
	ks.AccessCount++
	ks.LastAccessedAt = time.Now()
	a.pushRecentLocked("hit", key)
}

// RecordMiss increments miss_count only.
func (a *Analytics) RecordMiss(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.missCount++
	a.pushRecentLocked("miss", key)
}

// RecordPut updates the per-key size map, adjusts total_size by new-old,
// and updates max_size_seen.
func (a *Analytics) RecordPut(key string, size int, priority int, createdAt time.Time, expiresAt *time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.putCount++

	ks, existed := a.perKey[key]
	oldSize := 0
	if existed {
		oldSize = ks.EstimatedSize
	} else {
		ks = &KeyStats{CreatedAt: createdAt}
		a.perKey[key] = ks
	}
	ks.EstimatedSize = size
	ks.Priority = priority
	ks.ExpiresAt = expiresAt
	if ks.LastAccessedAt.IsZero() {
		ks.LastAccessedAt = createdAt
	}

	a.totalSize += int64(size - oldSize)
	if a.totalSize > a.maxSizeSeen {
		a.maxSizeSeen = a.totalSize
	}
	a.pushRecentLocked("put", key)
}

// RecordDelete subtracts the per-key size from total_size and removes the
// key from all per-key maps.
func (a *Analytics) RecordDelete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteCount++
	if ks, ok := a.perKey[key]; ok {
		a.totalSize -= int64(ks.EstimatedSize)
		delete(a.perKey, key)
	}
	a.pushRecentLocked("delete", key)
}

// RecordClear zeroes total_size and clears every per-key map.
func (a *Analytics) RecordClear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearCount++
	a.totalSize = 0
	a.perKey = make(map[string]*KeyStats)
	a.pushRecentLocked("clear", "")
}

// ResetMetrics zeroes every counter and per-key map, starting a fresh
// accounting epoch. hit_count/miss_count are monotone only between
// ResetMetrics calls.
func (a *Analytics) ResetMetrics() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hitCount, a.missCount, a.putCount, a.deleteCount, a.clearCount = 0, 0, 0, 0, 0
	a.totalSize, a.maxSizeSeen = 0, 0
	a.perKey = make(map[string]*KeyStats)
	a.startTime = time.Now()
	a.recent = nil
	a.recentCursor = 0
}

func (a *Analytics) keyStatsLocked(key string) *KeyStats {
	ks, ok := a.perKey[key]
	if !ok {
		ks = &KeyStats{}
		a.perKey[key] = ks
	}
	return ks
}

func (a *Analytics) pushRecentLocked(op, key string) {
	if a.recentCap <= 0 {
		return
	}
	ev := Event{Op: op, Key: key, Timestamp: time.Now()}
	if len(a.recent) < a.recentCap {
		a.recent = append(a.recent, ev)
		return
	}
	a.recent[a.recentCursor] = ev
	a.recentCursor = (a.recentCursor + 1) % a.recentCap
}

// Summary is the derived, point-in-time view of cache performance:
// hit rate, top-N lists, and uptime.
type Summary struct {
	HitCount        int64
	MissCount       int64
	PutCount        int64
	DeleteCount     int64
	ClearCount      int64
	HitRate         float64
	TotalSize       int64
	MaxSizeSeen     int64
	AverageItemSize float64
	EntryCount      int
	Uptime          time.Duration

	MostFrequentlyAccessed []KeyUsage
	MostRecentlyAccessed   []KeyUsage
	LargestItems           []KeyUsage
}

// KeyUsage pairs a key with one of its KeyStats dimensions for a top-N list.
type KeyUsage struct {
	Key   string
	Value float64
}

// Summary computes the current derived view. It takes a read lock but
// never calls out to a storage adapter, so holding it briefly is safe.
func (a *Analytics) Summary(topN int) Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Summary{
		HitCount:    a.hitCount,
		MissCount:   a.missCount,
		PutCount:    a.putCount,
		DeleteCount: a.deleteCount,
		ClearCount:  a.clearCount,
		TotalSize:   a.totalSize,
		MaxSizeSeen: a.maxSizeSeen,
		EntryCount:  len(a.perKey),
		Uptime:      time.Since(a.startTime),
	}
	total := s.HitCount + s.MissCount
	if total > 0 {
		s.HitRate = float64(s.HitCount) / float64(total)
	}
	if s.EntryCount > 0 {
		s.AverageItemSize = float64(s.TotalSize) / float64(s.EntryCount)
	}

	s.MostFrequentlyAccessed = topK(a.perKey, topN, func(k string, v *KeyStats) float64 {
		return float64(v.AccessCount)
	})
	s.MostRecentlyAccessed = topK(a.perKey, topN, func(k string, v *KeyStats) float64 {
		return float64(v.LastAccessedAt.UnixNano())
	})
	s.LargestItems = topK(a.perKey, topN, func(k string, v *KeyStats) float64 {
		return float64(v.EstimatedSize)
	})
	return s
}

// Snapshot returns a defensive copy of the per-key stats map, used by the
// eviction engine to choose victims without holding the analytics lock
// throughout a pass.
func (a *Analytics) Snapshot() map[string]KeyStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]KeyStats, len(a.perKey))
	for k, v := range a.perKey {
		out[k] = *v
	}
	return out
}

// TotalSize returns the current total_size counter.
func (a *Analytics) TotalSize() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalSize
}

// EntryCount returns the number of keys analytics currently tracks.
func (a *Analytics) EntryCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.perKey)
}
