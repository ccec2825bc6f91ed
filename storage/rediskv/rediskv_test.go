package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cachekit/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", &storage.Item{Value: []byte("hello"), Tags: []string{"a"}}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Value)
	assert.Equal(t, []string{"a"}, got.Tags)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutRefreshesTagIndexWhenTagsChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", &storage.Item{Tags: []string{"old"}}))

	keys, err := s.GetKeysByTag(ctx, "old", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, s.Put(ctx, "k", &storage.Item{Tags: []string{"new"}}))

	keys, err = s.GetKeysByTag(ctx, "old", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, keys, "put with a disjoint tag set must drop stale reverse-index membership")

	keys, err = s.GetKeysByTag(ctx, "new", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestDeleteRemovesTagIndexMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "x", &storage.Item{Tags: []string{"t"}}))
	require.NoError(t, s.Put(ctx, "y", &storage.Item{Tags: []string{"t"}}))

	require.NoError(t, s.Delete(ctx, "x"))

	keys, err := s.GetKeysByTag(ctx, "t", storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, keys)
}

func TestGetKeysByTagsIntersects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", &storage.Item{Tags: []string{"t1", "t2"}}))
	require.NoError(t, s.Put(ctx, "b", &storage.Item{Tags: []string{"t1"}}))
	require.NoError(t, s.Put(ctx, "c", &storage.Item{Tags: []string{"t2"}}))

	keys, err := s.GetKeysByTags(ctx, []string{"t1", "t2"}, storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestDeleteByTagRemovesOnlyTaggedItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", &storage.Item{Tags: []string{"group"}}))
	require.NoError(t, s.Put(ctx, "b", &storage.Item{Tags: []string{"group"}}))
	require.NoError(t, s.Put(ctx, "c", &storage.Item{Tags: []string{"other"}}))

	n, err := s.DeleteByTag(ctx, "group")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := s.ContainsKey(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClearRemovesItemsAndTagIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", &storage.Item{Tags: []string{"t"}}))

	require.NoError(t, s.Clear(ctx))

	ok, err := s.ContainsKey(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.GetKeysByTag(ctx, "t", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGetAllReturnsOnlyPresentKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", &storage.Item{Value: []byte("1")}))
	require.NoError(t, s.Put(ctx, "b", &storage.Item{Value: []byte("2")}))

	items, err := s.GetAll(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, []byte("1"), items["a"].Value)
}

func TestGetKeysPaginationIsSortedAndStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(ctx, k, &storage.Item{}))
	}

	page1, err := s.GetKeys(ctx, storage.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page1)

	page2, err := s.GetKeys(ctx, storage.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, page2)
}

func TestSlidingTTLRoundTripsThroughWireFormat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ttl := 5 * time.Minute
	require.NoError(t, s.Put(ctx, "k", &storage.Item{SlidingTTL: &ttl}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got.SlidingTTL)
	assert.Equal(t, ttl, *got.SlidingTTL)
}

func TestCapEncryptionIsAlwaysTrue(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.CapEncryption())
}

var _ storage.Adapter = (*Store)(nil)
