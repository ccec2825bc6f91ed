// Package eviction implements the pressure detection and victim-selection
// logic for the cache: LRU/LFU/FIFO/TTL strategies, priority-aware
// skipping of Critical items, and the hysteresis target that keeps a
// cache from thrashing at its limit.
package eviction

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kraklabs/cachekit/observability"
)

// Strategy identifies a victim-selection algorithm.
type Strategy int

const (
	LRU Strategy = iota
	LFU
	FIFO
	TTL
)

func (s Strategy) String() string {
	switch s {
	case LRU:
		return "lru"
	case LFU:
		return "lfu"
	case FIFO:
		return "fifo"
	case TTL:
		return "ttl"
	default:
		return "unknown"
	}
}

// hysteresisTarget is the fraction of a limit an eviction pass drives usage
// down to, so the next Put doesn't immediately re-trigger a pass.
const hysteresisTarget = 0.8

// Config configures pressure detection.
type Config struct {
	MaxSize  int64 // 0 disables the size limit
	MaxItems int   // 0 disables the item-count limit
	Strategy Strategy
}

// Candidate is everything the eviction engine needs to know about a key to
// decide whether and in what order to evict it. The engine (cachekit
// package) builds these from its analytics snapshot rather than scanning
// the storage adapter, so no lock is held across adapter calls.
type Candidate struct {
	Key            string
	Priority       int // ordinal matching storage.Priority: 0=Low..3=Critical
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	Size           int
	ExpiresAt      *time.Time
}

const criticalPriority = 3

// Deleter is the minimal capability the eviction engine needs from a
// storage backend: deleting a chosen victim key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// State is a position in the eviction pass state machine:
// Idle -> Measuring -> Selecting -> Evicting -> Idle.
type State int32

const (
	StateIdle State = iota
	StateMeasuring
	StateSelecting
	StateEvicting
)

// Result summarizes one completed (or skipped) eviction pass.
type Result struct {
	Ran        bool
	Evicted    []string
	FinalSize  int64
	FinalCount int
}

// Engine runs pressure checks and eviction passes. A single Engine
// instance coalesces concurrent CheckAndEvict calls via singleflight, so
// at most one pass runs per engine no matter how many goroutines call in
// concurrently.
type Engine struct {
	config  Config
	deleter Deleter
	logger  observability.Logger
	metrics observability.MetricsClient

	sf    singleflight.Group
	state int32
}

// State returns the engine's current position in the Idle -> Measuring ->
// Selecting -> Evicting -> Idle state machine.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}

func (e *Engine) setState(s State) {
	atomic.StoreInt32(&e.state, int32(s))
}

// New creates an eviction Engine bound to deleter for victim removal.
func New(config Config, deleter Deleter, logger observability.Logger, metrics observability.MetricsClient) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Engine{config: config, deleter: deleter, logger: logger, metrics: metrics}
}

// UpdateConfig swaps the eviction configuration, e.g. after a wiring
// reload.
func (e *Engine) UpdateConfig(config Config) { e.config = config }

// Config returns the engine's current configuration.
func (e *Engine) Config() Config { return e.config }

// pressure reports whether size/count exceed configured limits.
func pressure(size int64, count int, cfg Config) bool {
	if cfg.MaxSize > 0 && size > cfg.MaxSize {
		return true
	}
	if cfg.MaxItems > 0 && count > cfg.MaxItems {
		return true
	}
	return false
}

// CheckAndEvict runs one full pass: if there's no pressure it returns
// immediately; otherwise it selects victims via the configured
// strategy and deletes them one at a time until both size and count are
// at or below their hysteresis targets. candidates is a snapshot supplied
// by the caller (the engine, from its analytics store); totalSize/
// totalCount are the current totals those candidates were computed from.
func (e *Engine) CheckAndEvict(ctx context.Context, candidates []Candidate, totalSize int64, totalCount int) (Result, error) {
	if !pressure(totalSize, totalCount, e.config) {
		return Result{Ran: false, FinalSize: totalSize, FinalCount: totalCount}, nil
	}

	v, err, _ := e.sf.Do("evict", func() (interface{}, error) {
		return e.runPass(ctx, candidates, totalSize, totalCount)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) runPass(ctx context.Context, candidates []Candidate, totalSize int64, totalCount int) (Result, error) {
	defer e.setState(StateIdle)

	// Measuring: re-check pressure now that we hold the single-flight slot,
	// in case a coalesced caller already resolved it.
	e.setState(StateMeasuring)
	if !pressure(totalSize, totalCount, e.config) {
		return Result{Ran: false, FinalSize: totalSize, FinalCount: totalCount}, nil
	}

	// Selecting.
	e.setState(StateSelecting)
	ordered := selectVictims(candidates, e.config.Strategy)

	sizeTarget := int64(float64(e.config.MaxSize) * hysteresisTarget)
	countTarget := int(float64(e.config.MaxItems) * hysteresisTarget)

	// Evicting.
	e.setState(StateEvicting)
	evicted := make([]string, 0, len(ordered))
	size, count := totalSize, totalCount
	for _, c := range ordered {
		sizeOK := e.config.MaxSize <= 0 || size <= sizeTarget
		countOK := e.config.MaxItems <= 0 || count <= countTarget
		if sizeOK && countOK {
			break
		}
		if err := e.deleter.Delete(ctx, c.Key); err != nil {
			e.logger.Warn("eviction: failed to delete victim", map[string]interface{}{
				"key": c.Key, "error": err.Error(),
			})
			continue
		}
		evicted = append(evicted, c.Key)
		size -= int64(c.Size)
		count--
	}

	// Rescue path: primary strategy selection respected priority order
	// already, so if pressure remains and no further non-critical
	// candidates exist there is nothing left to evict (Critical items are
	// never touched by pressure eviction).
	if len(evicted) > 0 {
		e.metrics.IncrementCounter("evictions_total", float64(len(evicted)), map[string]string{
			"strategy": e.config.Strategy.String(),
		})
	}
	e.logger.Info("eviction pass complete", map[string]interface{}{
		"strategy": e.config.Strategy.String(),
		"evicted":  len(evicted),
		"size":     size,
		"count":    count,
	})

	return Result{Ran: true, Evicted: evicted, FinalSize: size, FinalCount: count}, nil
}

// selectVictims orders non-Critical candidates for eviction under
// strategy, applying the documented fallbacks (LRU/LFU fall back to FIFO
// when no access data exists; TTL falls back to LRU for items with no
// expiry) and the tie-break chain: priority ascending,
// then the strategy's secondary key, then lexicographic key.
func selectVictims(candidates []Candidate, strategy Strategy) []Candidate {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority >= criticalPriority {
			continue
		}
		eligible = append(eligible, c)
	}

	hasAccessData := false
	for _, c := range eligible {
		if c.AccessCount > 0 || !c.LastAccessedAt.IsZero() {
			hasAccessData = true
			break
		}
	}

	effective := strategy
	if (strategy == LRU || strategy == LFU) && !hasAccessData {
		effective = FIFO
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		primary, secondary := primaryLess(a, b, effective)
		if primary != 0 {
			return primary < 0
		}
		if secondary != 0 {
			return secondary < 0
		}
		return a.Key < b.Key
	})
	return eligible
}

// primaryLess returns (primaryCompare, secondaryCompare) for a vs b under
// strategy: negative means a sorts first, positive means b sorts first,
// zero means tied on that dimension.
func primaryLess(a, b Candidate, strategy Strategy) (int, int) {
	switch strategy {
	case LRU:
		return timeCompare(a.LastAccessedAt, b.LastAccessedAt), int64Compare(a.AccessCount, b.AccessCount)
	case LFU:
		return int64Compare(a.AccessCount, b.AccessCount), timeCompare(a.LastAccessedAt, b.LastAccessedAt)
	case FIFO:
		return timeCompare(a.CreatedAt, b.CreatedAt), timeCompare(a.LastAccessedAt, b.LastAccessedAt)
	case TTL:
		return ttlCompare(a, b), timeCompare(a.LastAccessedAt, b.LastAccessedAt)
	default:
		return timeCompare(a.CreatedAt, b.CreatedAt), 0
	}
}

// ttlCompare orders a before b when a expires sooner; items with no expiry
// sort after every item that has one (TTL's documented LRU fallback),
// ordered among themselves by last-access time via the caller's secondary
// key.
func ttlCompare(a, b Candidate) int {
	switch {
	case a.ExpiresAt != nil && b.ExpiresAt != nil:
		return timeCompare(*a.ExpiresAt, *b.ExpiresAt)
	case a.ExpiresAt != nil:
		return -1
	case b.ExpiresAt != nil:
		return 1
	default:
		return 0
	}
}

func timeCompare(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// evictByPriority is the priority-only rescue ordering:
// it walks priority tiers Low -> Normal -> High (never Critical) and
// returns keys in that tier order. selectVictims already applies
// priority-ascending as its primary sort key for every strategy, so this
// pure tier walk is kept as an internal helper rather than a second public
// entry point into victim selection.
func evictByPriority(candidates []Candidate) []Candidate {
	tiers := [][]Candidate{{}, {}, {}}
	for _, c := range candidates {
		if c.Priority >= criticalPriority {
			continue
		}
		tiers[c.Priority] = append(tiers[c.Priority], c)
	}
	out := make([]Candidate, 0, len(candidates))
	for _, tier := range tiers {
		sort.SliceStable(tier, func(i, j int) bool { return tier[i].Key < tier[j].Key })
		out = append(out, tier...)
	}
	return out
}
