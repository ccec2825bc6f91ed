package cachekit

import (
	"context"
	"time"

	"github.com/kraklabs/cachekit/storage"
)

// PutAll stores every key/value pair, executed via the adapter's batch
// Put API. Items exceeding the policy's MaxSize are skipped (logged, not
// failed) rather than aborting the whole call; their keys are returned.
func PutAll[T any](ctx context.Context, e *Engine, values map[string]T, opts ...PutOption) (skipped []string, err error) {
	if len(values) == 0 {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "put_all", Err: errEmptyList}
	}
	cfg := resolvePutConfig(opts)
	policy, err := e.effectivePolicy(cfg)
	if err != nil {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "put_all", Err: err}
	}
	tags := dedupeTags(cfg.tags)

	items := make(map[string]*storage.Item, len(values))
	sizes := make(map[string]int, len(values))
	for key, value := range values {
		if key == "" {
			return skipped, &CacheError{Kind: ErrInvalidArgument, Op: "put_all", Err: errEmptyKey}
		}
		item, size, berr := e.buildItem(ctx, value, policy, tags, false)
		if berr != nil {
			var cacheErr *CacheError
			if asCacheError(berr, &cacheErr) && cacheErr.Kind == ErrItemTooLarge {
				e.logger.Warn("put_all: skipping oversized item", map[string]interface{}{"key": key})
				skipped = append(skipped, key)
				continue
			}
			return skipped, berr
		}
		items[key] = item
		sizes[key] = size
	}

	if len(items) == 0 {
		return skipped, nil
	}

	for key, item := range items {
		e.analytics.RecordPut(key, sizes[key], int(item.Priority), item.CreatedAt, item.Expiry)
	}
	if err := e.adapter.PutAll(ctx, items); err != nil {
		return skipped, &CacheError{Kind: ErrStorageError, Op: "put_all", Err: err}
	}
	e.triggerEviction(ctx)
	return skipped, nil
}

// GetAll looks up every key via the adapter's batch Get API. refreshes,
// if non-nil, supplies a per-key refresh callback invoked only for the
// keys present in it; keys without one follow the plain miss path.
func GetAll[T any](ctx context.Context, e *Engine, keys []string, refreshes map[string]RefreshFunc[T], opts ...GetOption[T]) (map[string]T, error) {
	if len(keys) == 0 {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "get_all", Err: errEmptyList}
	}
	var cfg getConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	policy := e.defaultPolicy
	if cfg.policy != nil {
		policy = merge(e.defaultPolicy, *cfg.policy)
	}

	items, err := e.adapter.GetAll(ctx, keys)
	if err != nil {
		return nil, &CacheError{Kind: ErrStorageError, Op: "get_all", Err: err}
	}

	now := time.Now()
	result := make(map[string]T, len(keys))
	var expiredKeys []string
	for _, key := range keys {
		item, ok := items[key]
		refresh := refreshes[key]
		if !ok {
			v, found, err := handleMiss(ctx, e, key, policy, refresh)
			if err != nil {
				return result, err
			}
			if found {
				result[key] = v
			}
			continue
		}
		if item.IsExpired(now) {
			expiredKeys = append(expiredKeys, key)
			v, found, err := handleMiss(ctx, e, key, policy, refresh)
			if err != nil {
				return result, err
			}
			if found {
				result[key] = v
			}
			continue
		}
		if policy.StaleTime != nil && refresh != nil && item.IsStale(now, *policy.StaleTime) {
			switch policy.RefreshStrategy {
			case RefreshBackground:
				scheduleBackgroundRefresh(e, key, policy, refresh)
			case RefreshImmediate:
				fresh, rerr := refresh(ctx)
				if rerr != nil {
					return result, &CacheError{Kind: ErrStorageError, Op: "get_all_refresh", Key: key, Err: rerr}
				}
				if err := Put(ctx, e, key, fresh, putOptionsFromPolicy(policy)...); err != nil {
					return result, err
				}
				result[key] = fresh
				continue
			}
		}
		data, derr := e.decodeItem(ctx, key, item, false)
		if derr != nil {
			return result, derr
		}
		var out T
		if err := e.serializer.Unmarshal(data, &out); err != nil {
			return result, &CacheError{Kind: ErrInvalidArgument, Op: "get_all", Key: key, Err: err}
		}
		e.writeBackAccess(ctx, key, item, now)
		e.analytics.RecordHit(key)
		e.metrics.IncrementCounter("hits_total", 1, nil)
		result[key] = out
	}

	if len(expiredKeys) > 0 {
		if err := e.adapter.DeleteAll(ctx, expiredKeys); err != nil {
			e.logger.Warn("get_all: failed to delete expired items", map[string]interface{}{"error": err.Error()})
		} else {
			for _, key := range expiredKeys {
				e.analytics.RecordDelete(key)
			}
		}
	}

	return result, nil
}

// DeleteAll removes every key via the adapter's batch Delete API.
func DeleteAll(ctx context.Context, e *Engine, keys []string) error {
	if len(keys) == 0 {
		return &CacheError{Kind: ErrInvalidArgument, Op: "delete_all", Err: errEmptyList}
	}
	if err := e.adapter.DeleteAll(ctx, keys); err != nil {
		return &CacheError{Kind: ErrStorageError, Op: "delete_all", Err: err}
	}
	for _, key := range keys {
		e.analytics.RecordDelete(key)
	}
	return nil
}

// ContainsKeys reports presence for every key via the adapter's batch
// probe.
func (e *Engine) ContainsKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "contains_keys", Err: errEmptyList}
	}
	out, err := e.adapter.ContainsKeys(ctx, keys)
	if err != nil {
		return nil, &CacheError{Kind: ErrStorageError, Op: "contains_keys", Err: err}
	}
	return out, nil
}

// asCacheError is a small errors.As wrapper kept local to avoid importing
// the "errors" package into every call site that needs this one check.
func asCacheError(err error, target **CacheError) bool {
	ce, ok := err.(*CacheError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
