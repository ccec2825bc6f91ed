package cachekit

import (
	"context"
	"errors"

	"github.com/kraklabs/cachekit/storage"
)

// Delete removes key, if present.
func (e *Engine) Delete(ctx context.Context, key string) error {
	if key == "" {
		return &CacheError{Kind: ErrInvalidArgument, Op: "delete", Err: errEmptyKey}
	}
	ctx, span := e.tracer.StartSpan(ctx, "cache.delete")
	span.SetAttribute("cache.key", key)
	defer span.End()

	if err := e.adapter.Delete(ctx, key); err != nil {
		span.RecordError(err)
		return &CacheError{Kind: ErrStorageError, Op: "delete", Key: key, Err: err}
	}
	e.analytics.RecordDelete(key)
	return nil
}

// Clear removes every item in the cache.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.adapter.Clear(ctx); err != nil {
		return &CacheError{Kind: ErrStorageError, Op: "clear", Err: err}
	}
	e.analytics.RecordClear()
	return nil
}

// ContainsKey reports whether key currently holds a (possibly expired)
// item; callers wanting expiry-aware presence should use Get.
func (e *Engine) ContainsKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, &CacheError{Kind: ErrInvalidArgument, Op: "contains_key", Err: errEmptyKey}
	}
	ok, err := e.adapter.ContainsKey(ctx, key)
	if err != nil {
		return false, &CacheError{Kind: ErrStorageError, Op: "contains_key", Key: key, Err: err}
	}
	return ok, nil
}

// Invalidate removes key; it is an alias for Delete.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	return e.Delete(ctx, key)
}

// InvalidatePredicate inspects a decoded item's metadata to decide
// whether InvalidateWhere should delete it.
type InvalidatePredicate func(meta ItemMeta) bool

// InvalidateWhere iterates every key, loading each item and testing
// predicate against its metadata, deleting on match. Intended for
// low-frequency administrative use.
func (e *Engine) InvalidateWhere(ctx context.Context, predicate InvalidatePredicate) (int, error) {
	// Snapshot the key listing up front: deleting while paginating by
	// offset would shift later keys down and skip them.
	var all []string
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		keys, err := e.adapter.GetKeys(ctx, storage.Page{Limit: pageSize, Offset: offset})
		if err != nil {
			return 0, &CacheError{Kind: ErrStorageError, Op: "invalidate_where", Err: err}
		}
		all = append(all, keys...)
		if len(keys) < pageSize {
			break
		}
	}

	deleted := 0
	for _, key := range all {
		item, err := e.adapter.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return deleted, &CacheError{Kind: ErrStorageError, Op: "invalidate_where", Key: key, Err: err}
		}
		if !predicate(itemMeta(key, item)) {
			continue
		}
		if err := e.adapter.Delete(ctx, key); err != nil {
			return deleted, &CacheError{Kind: ErrStorageError, Op: "invalidate_where", Key: key, Err: err}
		}
		e.analytics.RecordDelete(key)
		deleted++
	}
	return deleted, nil
}

func itemMeta(key string, item *storage.Item) ItemMeta {
	return ItemMeta{
		Key:              key,
		Expiry:           item.Expiry,
		SlidingTTL:       item.SlidingTTL,
		Priority:         item.Priority,
		CreatedAt:        item.CreatedAt,
		LastAccessedAt:   item.LastAccessedAt,
		AccessCount:      item.AccessCount,
		IsCompressed:     item.IsCompressed,
		OriginalSize:     item.OriginalSize,
		CompressionRatio: item.CompressionRatio,
		Tags:             item.Tags,
	}
}
