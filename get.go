package cachekit

import (
	"context"
	"errors"
	"time"

	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/storage"
)

// RefreshFunc produces a fresh value for a stale or missing key.
type RefreshFunc[T any] func(ctx context.Context) (T, error)

// GetOption configures a single Get call.
type GetOption[T any] func(*getConfig[T])

type getConfig[T any] struct {
	policy  *Policy
	refresh RefreshFunc[T]
}

// WithGetPolicy supplies the policy governing stale-refresh behavior for
// this read.
func WithGetPolicy[T any](p Policy) GetOption[T] {
	return func(c *getConfig[T]) { c.policy = &p }
}

// WithRefresh supplies the callback used on miss or staleness.
func WithRefresh[T any](fn RefreshFunc[T]) GetOption[T] {
	return func(c *getConfig[T]) { c.refresh = fn }
}

// Get looks up key, applying expiry/staleness/sliding-TTL rules and an
// optional refresh callback. The bool return reports
// whether a value was found or produced.
func Get[T any](ctx context.Context, e *Engine, key string, opts ...GetOption[T]) (T, bool, error) {
	return getValue(ctx, e, key, opts, false)
}

// GetAsync is Get with large-payload decompression offloaded to the
// codec worker pool. Behavior is otherwise identical to Get.
func GetAsync[T any](ctx context.Context, e *Engine, key string, opts ...GetOption[T]) (T, bool, error) {
	return getValue(ctx, e, key, opts, true)
}

func getValue[T any](ctx context.Context, e *Engine, key string, opts []GetOption[T], async bool) (val T, found bool, err error) {
	var zero T
	if key == "" {
		return zero, false, &CacheError{Kind: ErrInvalidArgument, Op: "get", Key: key, Err: errEmptyKey}
	}
	ctx, span := e.tracer.StartSpan(ctx, "cache.get")
	span.SetAttribute("cache.key", key)
	defer func() {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetAttribute("cache.hit", found)
		}
		span.End()
	}()

	var cfg getConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	policy := e.defaultPolicy
	if cfg.policy != nil {
		policy = merge(e.defaultPolicy, *cfg.policy)
	}

	item, err := e.adapter.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return handleMiss(ctx, e, key, policy, cfg.refresh)
		}
		return zero, false, &CacheError{Kind: ErrStorageError, Op: "get", Key: key, Err: err}
	}

	now := time.Now()
	if item.IsExpired(now) {
		if err := e.adapter.Delete(ctx, key); err != nil {
			e.logger.Warn("get: failed to delete expired item", map[string]interface{}{"key": key, "error": err.Error()})
		} else {
			e.analytics.RecordDelete(key)
		}
		return handleMiss(ctx, e, key, policy, cfg.refresh)
	}

	if policy.StaleTime != nil && cfg.refresh != nil && item.IsStale(now, *policy.StaleTime) {
		switch policy.RefreshStrategy {
		case RefreshBackground:
			scheduleBackgroundRefresh(e, key, policy, cfg.refresh)
		case RefreshImmediate:
			fresh, err := cfg.refresh(ctx)
			if err != nil {
				return zero, false, &CacheError{Kind: ErrStorageError, Op: "get_refresh", Key: key, Err: err}
			}
			if err := Put(ctx, e, key, fresh, putOptionsFromPolicy(policy)...); err != nil {
				return zero, false, err
			}
			return fresh, true, nil
		}
	}

	value, err := e.decodeItem(ctx, key, item, async)
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := e.serializer.Unmarshal(value, &out); err != nil {
		return zero, false, &CacheError{Kind: ErrInvalidArgument, Op: "get", Key: key, Err: err}
	}

	e.writeBackAccess(ctx, key, item, now)
	e.analytics.RecordHit(key)
	e.metrics.IncrementCounter("hits_total", 1, nil)
	return out, true, nil
}

// handleMiss implements the "not found" branch of get shared by the
// not-found and expired paths: invoke the refresh callback if present,
// otherwise report a miss.
func handleMiss[T any](ctx context.Context, e *Engine, key string, policy Policy, refresh RefreshFunc[T]) (T, bool, error) {
	var zero T
	e.analytics.RecordMiss(key)
	e.metrics.IncrementCounter("misses_total", 1, nil)
	if refresh == nil {
		return zero, false, nil
	}
	fresh, err := refresh(ctx)
	if err != nil {
		return zero, false, &CacheError{Kind: ErrStorageError, Op: "get_refresh", Key: key, Err: err}
	}
	if err := Put(ctx, e, key, fresh, putOptionsFromPolicy(policy)...); err != nil {
		return zero, false, err
	}
	return fresh, true, nil
}

// decodeItem reverses encryption then compression. Decompression is
// best-effort on read: a failure is logged and the raw stored bytes are
// returned rather than failing the read, except that a failure with ctx
// already cancelled is returned as ErrCodecError. When async is set,
// decompression of payloads above the engine's threshold runs on the
// codec worker pool.
func (e *Engine) decodeItem(ctx context.Context, key string, item *storage.Item, async bool) ([]byte, error) {
	payload := item.Value
	if item.IsEncrypted {
		if e.encryptionKey == nil {
			return nil, &CacheError{Kind: ErrEncryptionError, Op: "get", Key: key, Err: errNoEncryptionKey}
		}
		plain, derr := codec.Decrypt(payload, e.encryptionKey)
		if derr != nil {
			return nil, &CacheError{Kind: ErrEncryptionError, Op: "get", Key: key, Err: derr}
		}
		payload = plain
	}
	if item.IsCompressed {
		var plain []byte
		var derr error
		if async && len(payload) >= e.asyncThreshold {
			plain, derr = e.codecPool.Decompress(ctx, payload)
		} else {
			plain, derr = codec.Decompress(payload)
		}
		if derr != nil {
			if ctx.Err() != nil {
				return nil, &CacheError{Kind: ErrCodecError, Op: "get", Key: key, Err: derr}
			}
			e.logger.Warn("get: decompression failed, returning raw stored value", map[string]interface{}{
				"key": key, "error": derr.Error(),
			})
			return payload, nil
		}
		return plain, nil
	}
	return payload, nil
}

// writeBackAccess updates access_count/last_accessed_at (and, if sliding
// TTL is set, expiry) and best-effort writes the item back. Failure is
// logged, never surfaced.
func (e *Engine) writeBackAccess(ctx context.Context, key string, item *storage.Item, now time.Time) {
	if item.SlidingTTL != nil {
		next := now.Add(*item.SlidingTTL)
		item.Expiry = &next
	}
	item.LastAccessedAt = now
	item.AccessCount++

	if err := e.adapter.Put(ctx, key, item); err != nil {
		e.logger.Warn("get: best-effort metadata write-back failed", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
	}
}

// putOptionsFromPolicy converts a resolved read-path policy into
// PutOptions so refresh-triggered writes go through the normal put path,
// keeping policy, compression, and analytics consistent.
func putOptionsFromPolicy(policy Policy) []PutOption {
	return []PutOption{WithPutPolicy(policy)}
}

// scheduleBackgroundRefresh spawns a detached, engine-lifetime-bound
// goroutine running the refresh callback then put. Failures are logged
// and dropped.
func scheduleBackgroundRefresh[T any](e *Engine, key string, policy Policy, refresh RefreshFunc[T]) {
	e.spawnBackground(func(ctx context.Context) {
		fresh, err := refresh(ctx)
		if err != nil {
			e.logger.Warn("background refresh failed", map[string]interface{}{"key": key, "error": err.Error()})
			return
		}
		if err := Put(ctx, e, key, fresh, putOptionsFromPolicy(policy)...); err != nil {
			e.logger.Warn("background refresh put failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	})
}

var errNoEncryptionKey = errors.New("cachekit: item is encrypted but no encryption key is configured")
