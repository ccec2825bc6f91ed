package cachekit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/eviction"
	"github.com/kraklabs/cachekit/storage"
	"github.com/kraklabs/cachekit/storage/memstore"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(memstore.New(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// S1: an item placed with a short expiry is absent once that time passes.
func TestScenarioExpiry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, Put(ctx, e, "k", "v", WithPutExpiry(10*time.Millisecond)))
	v, found, err := Get[string](ctx, e, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)
	_, found, err = Get[string](ctx, e, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired item must not be returned")
}

// S2: sliding TTL is refreshed on every successful read.
func TestScenarioSlidingTTL(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, Put(ctx, e, "k", "v",
		WithPutExpiry(60*time.Millisecond),
		WithPutSlidingTTL(60*time.Millisecond)))

	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		_, found, err := Get[string](ctx, e, "k")
		require.NoError(t, err)
		require.True(t, found, "sliding TTL read should keep renewing expiry past the original 60ms window")
	}
}

// S3: LRU eviction reclaims the least recently used keys under pressure,
// sparing one that was touched more recently than the rest.
func TestScenarioLRUEviction(t *testing.T) {
	e := newTestEngine(t, WithEviction(eviction.Config{MaxItems: 3, Strategy: eviction.LRU}))
	ctx := context.Background()

	require.NoError(t, Put(ctx, e, "a", "1"))
	require.NoError(t, Put(ctx, e, "b", "2"))
	require.NoError(t, Put(ctx, e, "c", "3"))
	// touch "a" last so it's the most recently used of the three
	_, _, err := Get[string](ctx, e, "a")
	require.NoError(t, err)

	// crossing MaxItems drives the count down to its 80% hysteresis target
	// (2), evicting both "b" and "c" and sparing the recently touched "a"
	require.NoError(t, Put(ctx, e, "d", "4"))

	_, found, err := Get[string](ctx, e, "b")
	require.NoError(t, err)
	assert.False(t, found, "b was least recently used and should have been evicted")

	_, found, err = Get[string](ctx, e, "c")
	require.NoError(t, err)
	assert.False(t, found, "c was the next least recently used and should have been evicted")

	_, found, err = Get[string](ctx, e, "a")
	require.NoError(t, err)
	assert.True(t, found, "a was touched most recently and should survive the pass")
}

// S4: a highly compressible string value round-trips through compression.
func TestScenarioCompressionRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	payload := strings.Repeat("compress me please ", 500)
	require.NoError(t, Put(ctx, e, "k", payload))

	got, found, err := Get[string](ctx, e, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, got)
}

// Compression applies to string values only: a struct stored under an
// always-compress policy is persisted as plain serialized bytes, while a
// string under the same policy is gzipped.
func TestCompressionAlwaysSkipsNonStringValues(t *testing.T) {
	adapter := memstore.New()
	e, err := NewEngine(adapter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	type record struct {
		Name  string
		Count int
	}
	require.NoError(t, Put(ctx, e, "struct", record{Name: strings.Repeat("n", 500), Count: 7},
		WithPutPolicy(CompressedPolicy())))

	item, err := adapter.Get(ctx, "struct")
	require.NoError(t, err)
	assert.False(t, item.IsCompressed, "non-string values must not be compressed")

	require.NoError(t, Put(ctx, e, "string", strings.Repeat("n", 500),
		WithPutPolicy(CompressedPolicy())))
	item, err = adapter.Get(ctx, "string")
	require.NoError(t, err)
	assert.True(t, item.IsCompressed, "string values under an always policy must be compressed")
}

// S5: deleting by tag removes every item sharing that tag and leaves others.
func TestScenarioDeleteByTag(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, Put(ctx, e, "a", "1", WithPutTags("group1")))
	require.NoError(t, Put(ctx, e, "b", "2", WithPutTags("group1")))
	require.NoError(t, Put(ctx, e, "c", "3", WithPutTags("group2")))

	n, err := e.DeleteByTag(ctx, "group1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, found, _ := Get[string](ctx, e, "a")
	assert.False(t, found)
	_, found, _ = Get[string](ctx, e, "c")
	assert.True(t, found)
}

// S6: a background refresh fires once an item goes stale and the refreshed
// value is visible on a subsequent read.
func TestScenarioBackgroundRefresh(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	stale := 10 * time.Millisecond
	ttl := time.Hour
	policy := BackgroundRefreshPolicy(stale, ttl)
	require.NoError(t, Put(ctx, e, "k", "old", WithPutPolicy(policy)))

	time.Sleep(30 * time.Millisecond)

	refreshed := make(chan struct{})
	refresh := func(ctx context.Context) (string, error) {
		defer close(refreshed)
		return "new", nil
	}
	v, found, err := Get(ctx, e, "k", WithGetPolicy[string](policy), WithRefresh(refresh))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", v, "background refresh returns the stale value immediately")

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("background refresh callback never ran")
	}
}

func TestGetMissingKeyReturnsFalseNoError(t *testing.T) {
	e := newTestEngine(t)
	_, found, err := Get[string](context.Background(), e, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetEmptyKeyIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := Get[string](context.Background(), e, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPutEmptyKeyIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t)
	err := Put(context.Background(), e, "", "v")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPutAllSkipsOversizedItemsWithoutFailingBatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	maxSize := 100
	// Compression is off so the repetitive payload is sized uncompressed.
	policy := DefaultPolicy().WithCompression(CompressionNever)
	policy.MaxSize = &maxSize

	skipped, err := PutAll(ctx, e, map[string]string{
		"small": "a",
		"huge":  strings.Repeat("x", 1000),
	}, WithPutPolicy(policy))
	require.NoError(t, err)
	assert.Contains(t, skipped, "huge")

	_, found, err := Get[string](ctx, e, "small")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGetAllPerKeyRefreshOnlyAppliesToSuppliedCallbacks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, Put(ctx, e, "present", "value"))

	refreshes := map[string]RefreshFunc[string]{
		"missing": func(ctx context.Context) (string, error) { return "produced", nil },
	}
	result, err := GetAll(ctx, e, []string{"present", "missing", "also-missing"}, refreshes)
	require.NoError(t, err)
	assert.Equal(t, "value", result["present"])
	assert.Equal(t, "produced", result["missing"])
	_, ok := result["also-missing"]
	assert.False(t, ok, "a key with no refresh callback and no stored value stays absent from the result")
}

func TestEncryptedItemsRoundTripAndAreMarkedEncrypted(t *testing.T) {
	e := newTestEngine(t, WithEncryption(codec.EncryptionOptions{Password: "hunter2"}))
	ctx := context.Background()

	require.NoError(t, Put(ctx, e, "secret", "classified", WithPutPolicy(EncryptedPolicy(time.Hour))))
	v, found, err := Get[string](ctx, e, "secret")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "classified", v)
}

func TestDecryptWithoutConfiguredKeyFails(t *testing.T) {
	adapter := memstore.New()
	encrypted := newTestEngineWithAdapter(t, adapter, WithEncryption(codec.EncryptionOptions{Password: "hunter2"}))
	ctx := context.Background()
	require.NoError(t, Put(ctx, encrypted, "secret", "classified", WithPutPolicy(EncryptedPolicy(time.Hour))))

	plain := newTestEngineWithAdapter(t, adapter)
	_, _, err := Get[string](ctx, plain, "secret")
	var cacheErr *CacheError
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, ErrEncryptionError, cacheErr.Kind)
}

func newTestEngineWithAdapter(t *testing.T, adapter storage.Adapter, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(adapter, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestInvalidateWhereDeletesMatchingItems(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, Put(ctx, e, "low", "1", WithPutPolicy(DefaultPolicy().WithPriority(PriorityLow))))
	require.NoError(t, Put(ctx, e, "high", "2", WithPutPolicy(DefaultPolicy().WithPriority(PriorityHigh))))

	n, err := e.InvalidateWhere(ctx, func(meta ItemMeta) bool {
		return meta.Priority == PriorityLow
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, _ := Get[string](ctx, e, "low")
	assert.False(t, found)
	_, found, _ = Get[string](ctx, e, "high")
	assert.True(t, found)
}

func TestNewEngineRejectsNilAdapter(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCloseWaitsForBackgroundTasks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stale := time.Nanosecond
	policy := BackgroundRefreshPolicy(stale, time.Hour)
	require.NoError(t, Put(ctx, e, "k", "old", WithPutPolicy(policy)))
	time.Sleep(time.Millisecond)

	started := make(chan struct{})
	refresh := func(ctx context.Context) (string, error) {
		close(started)
		return "new", nil
	}
	_, _, err := Get(ctx, e, "k", WithGetPolicy[string](policy), WithRefresh(refresh))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("background refresh never started")
	}
	require.NoError(t, e.Close())
}
