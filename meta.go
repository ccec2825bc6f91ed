package cachekit

import (
	"context"
	"errors"

	"github.com/kraklabs/cachekit/storage"
)

// Keys returns a page of all keys currently stored, for administrative
// and synchronization use.
func (e *Engine) Keys(ctx context.Context, page storage.Page) ([]string, error) {
	keys, err := e.adapter.GetKeys(ctx, page)
	if err != nil {
		return nil, &CacheError{Kind: ErrStorageError, Op: "keys", Err: err}
	}
	return keys, nil
}

// PeekMeta returns a key's metadata without affecting hit/miss analytics
// or triggering stale-refresh/sliding-TTL side effects. It is the
// introspection read the synchronizer uses to compare versions across
// engines.
func (e *Engine) PeekMeta(ctx context.Context, key string) (ItemMeta, bool, error) {
	item, err := e.adapter.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ItemMeta{}, false, nil
		}
		return ItemMeta{}, false, &CacheError{Kind: ErrStorageError, Op: "peek_meta", Key: key, Err: err}
	}
	return itemMeta(key, item), true, nil
}
