package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cachekit/storage"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	item := &storage.Item{Value: []byte("hello"), Tags: []string{"a"}}

	require.NoError(t, s.Put(ctx, "k", item))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Value)

	item.Value[0] = 'X'
	assert.Equal(t, byte('h'), got.Value[0], "Put must clone the item, not alias the caller's slice")
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteAbsentKeyIsNotAnError(t *testing.T) {
	s := New()
	assert.NoError(t, s.Delete(context.Background(), "missing"))
}

func TestClearRemovesEverything(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", &storage.Item{}))
	require.NoError(t, s.Clear(ctx))
	ok, err := s.ContainsKey(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetKeysPagination(t *testing.T) {
	s := New()
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

	beyond, err := s.GetKeys(ctx, storage.Page{Offset: 10})
	require.NoError(t, err)
	assert.Nil(t, beyond)
}

func TestBatchOperations(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutAll(ctx, map[string]*storage.Item{
		"a": {Value: []byte("1")},
		"b": {Value: []byte("2")},
	}))

	got, err := s.GetAll(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	presence, err := s.ContainsKeys(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.True(t, presence["a"])
	assert.False(t, presence["missing"])

	require.NoError(t, s.DeleteAll(ctx, []string{"a"}))
	presence, err = s.ContainsKeys(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, presence["a"])
	assert.True(t, presence["b"])
}

func TestGetKeysByTagsIsAnAndQuery(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "both", &storage.Item{Tags: []string{"x", "y"}}))
	require.NoError(t, s.Put(ctx, "only-x", &storage.Item{Tags: []string{"x"}}))

	keys, err := s.GetKeysByTags(ctx, []string{"x", "y"}, storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"both"}, keys)

	keys, err = s.GetKeysByTag(ctx, "x", storage.Page{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"both", "only-x"}, keys)
}

func TestDeleteByTagsRemovesOnlyMatching(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "both", &storage.Item{Tags: []string{"x", "y"}}))
	require.NoError(t, s.Put(ctx, "only-x", &storage.Item{Tags: []string{"x"}}))

	n, err := s.DeleteByTags(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, _ := s.ContainsKey(ctx, "both")
	assert.False(t, ok)
	ok, _ = s.ContainsKey(ctx, "only-x")
	assert.True(t, ok)
}

func TestCapEncryptionIsTrue(t *testing.T) {
	assert.True(t, New().CapEncryption())
}
