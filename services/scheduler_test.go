package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/eviction"
	"github.com/kraklabs/cachekit/storage/memstore"
)

func newTestCacheEngineWithEviction(t *testing.T, config eviction.Config) *cachekit.Engine {
	t.Helper()
	e, err := cachekit.NewEngine(memstore.New(), cachekit.WithEviction(config))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// The scheduler must drive the eviction engine's pressure-based victim
// selection, not merely purge expired items (that's the separate
// periodic-cleanup service in cleanup.go). These tests put the cache
// over its configured MaxItems with no expiry set at all. The Put of "c"
// already runs an eviction pass that removes "a" and "b", so the
// assertions below hold whether or not a scheduled pass runs.
func TestEvictionSchedulerRunsOnInterval(t *testing.T) {
	engine := newTestCacheEngineWithEviction(t, eviction.Config{MaxItems: 2, Strategy: eviction.FIFO})
	ctx := context.Background()
	require.NoError(t, cachekit.Put(ctx, engine, "a", "1"))
	require.NoError(t, cachekit.Put(ctx, engine, "b", "2"))
	require.NoError(t, cachekit.Put(ctx, engine, "c", "3"))

	sched := NewEvictionScheduler(engine, SchedulerConfig{Interval: 10 * time.Millisecond})
	sched.Start(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		ok, err := engine.ContainsKey(ctx, "a")
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond, "oldest key under FIFO pressure should be evicted by a scheduled pass")
}

func TestEvictionSchedulerSignalTriggersRun(t *testing.T) {
	engine := newTestCacheEngineWithEviction(t, eviction.Config{MaxItems: 2, Strategy: eviction.FIFO})
	ctx := context.Background()
	require.NoError(t, cachekit.Put(ctx, engine, "a", "1"))
	require.NoError(t, cachekit.Put(ctx, engine, "b", "2"))
	require.NoError(t, cachekit.Put(ctx, engine, "c", "3"))

	sched := NewEvictionScheduler(engine, SchedulerConfig{})
	sched.Start(ctx)
	defer sched.Stop()
	sched.Signal(SignalIdle)

	require.Eventually(t, func() bool {
		ok, err := engine.ContainsKey(ctx, "a")
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond, "a platform signal should trigger a real eviction pass")
}

func TestEvictionSchedulerMinIntervalSuppressesRapidSignals(t *testing.T) {
	engine := newTestCacheEngineWithEviction(t, eviction.Config{MaxItems: 2, Strategy: eviction.FIFO})
	sched := NewEvictionScheduler(engine, SchedulerConfig{MinInterval: time.Hour})
	ctx := context.Background()
	sched.Start(ctx)
	defer sched.Stop()

	sched.Signal(SignalIdle)
	time.Sleep(20 * time.Millisecond)
	firstRun := sched.lastRun
	assert.False(t, firstRun.IsZero())

	sched.Signal(SignalIdle)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, firstRun, sched.lastRun, "a signal within MinInterval of the last run must not trigger another pass")
}
