package cachekit

import (
	"context"
	"time"

	"github.com/kraklabs/cachekit/storage"
)

// PurgeExpired iterates every key, loading each item and deleting it if
// expired. It returns the number of items
// removed. Intended to be invoked periodically by an external scheduler
// (see the services package) rather than run inline with request traffic.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	// Snapshot the key listing before deleting anything, so offset
	// pagination doesn't skip keys shifted down by earlier deletes.
	var all []string
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		keys, err := e.adapter.GetKeys(ctx, storage.Page{Limit: pageSize, Offset: offset})
		if err != nil {
			return 0, &CacheError{Kind: ErrStorageError, Op: "purge_expired", Err: err}
		}
		all = append(all, keys...)
		if len(keys) < pageSize {
			break
		}
	}

	var expired []string
	for _, key := range all {
		item, err := e.adapter.Get(ctx, key)
		if err != nil {
			continue
		}
		if item.IsExpired(time.Now()) {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := e.adapter.DeleteAll(ctx, expired); err != nil {
		return 0, &CacheError{Kind: ErrStorageError, Op: "purge_expired", Err: err}
	}
	for _, key := range expired {
		e.analytics.RecordDelete(key)
	}
	return len(expired), nil
}
