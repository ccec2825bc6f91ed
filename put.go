package cachekit

import (
	"context"
	"fmt"
	"time"

	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/sizeof"
	"github.com/kraklabs/cachekit/storage"
)

// PutOption configures a single Put call; an inline option overrides the
// corresponding effective-policy field.
type PutOption func(*putConfig)

type putConfig struct {
	expiry     *time.Duration
	slidingTTL *time.Duration
	policy     *Policy
	tags       []string
}

// WithPutExpiry sets an inline absolute TTL from put time.
func WithPutExpiry(d time.Duration) PutOption {
	return func(c *putConfig) { c.expiry = &d }
}

// WithPutSlidingTTL sets an inline sliding expiry.
func WithPutSlidingTTL(d time.Duration) PutOption {
	return func(c *putConfig) { c.slidingTTL = &d }
}

// WithPutPolicy supplies a policy to merge under any inline overrides.
func WithPutPolicy(p Policy) PutOption {
	return func(c *putConfig) { c.policy = &p }
}

// WithPutTags attaches tags to the stored item.
func WithPutTags(tags ...string) PutOption {
	return func(c *putConfig) { c.tags = tags }
}

func resolvePutConfig(opts []PutOption) putConfig {
	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// effectivePolicy merges the call's policy over the engine default, then
// applies inline overrides on top.
func (e *Engine) effectivePolicy(cfg putConfig) (Policy, error) {
	base := e.defaultPolicy
	if cfg.policy != nil {
		base = merge(e.defaultPolicy, *cfg.policy)
	}
	if cfg.expiry != nil {
		base.Expiry = cfg.expiry
	}
	if cfg.slidingTTL != nil {
		base.SlidingTTL = cfg.slidingTTL
	}
	if err := base.validate(); err != nil {
		return Policy{}, err
	}
	return base, nil
}

// Put stores value under key according to opts.
func Put[T any](ctx context.Context, e *Engine, key string, value T, opts ...PutOption) error {
	return putValue(ctx, e, key, value, opts, false)
}

// PutAsync is Put with large-payload compression offloaded to the codec
// worker pool. Behavior is otherwise identical to Put.
func PutAsync[T any](ctx context.Context, e *Engine, key string, value T, opts ...PutOption) error {
	return putValue(ctx, e, key, value, opts, true)
}

func putValue[T any](ctx context.Context, e *Engine, key string, value T, opts []PutOption, async bool) (err error) {
	if key == "" {
		return &CacheError{Kind: ErrInvalidArgument, Op: "put", Key: key, Err: errEmptyKey}
	}
	ctx, span := e.tracer.StartSpan(ctx, "cache.put")
	span.SetAttribute("cache.key", key)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	cfg := resolvePutConfig(opts)
	policy, perr := e.effectivePolicy(cfg)
	if perr != nil {
		return &CacheError{Kind: ErrInvalidArgument, Op: "put", Key: key, Err: perr}
	}
	item, size, err := e.buildItem(ctx, value, policy, dedupeTags(cfg.tags), async)
	if err != nil {
		return err
	}
	return e.commitPut(ctx, key, item, size)
}

// buildItem runs the write-side pipeline: compression, encryption, size
// enforcement, and item construction. The returned item has
// Value pointing at the final on-disk payload; the returned int is the
// estimated size used for both the max_size check and analytics.
func (e *Engine) buildItem(ctx context.Context, value interface{}, policy Policy, tags []string, async bool) (*storage.Item, int, error) {
	data, err := e.serializer.Marshal(value)
	if err != nil {
		return nil, 0, &CacheError{Kind: ErrInvalidArgument, Op: "put", Err: fmt.Errorf("marshal value: %w", err)}
	}

	payload, isCompressed, originalSize, ratio, err := e.compressPayload(ctx, data, value, policy, async)
	if err != nil {
		return nil, 0, &CacheError{Kind: ErrCodecError, Op: "put", Err: err}
	}

	isEncrypted := false
	if policy.Encrypt && e.encryptionKey != nil && e.adapter.CapEncryption() {
		ciphertext, err := codec.Encrypt(payload, e.encryptionKey)
		if err != nil {
			return nil, 0, &CacheError{Kind: ErrEncryptionError, Op: "put", Err: err}
		}
		payload = ciphertext
		isEncrypted = true
	}

	estimated := sizeof.EstimateItemSize(value, sizeof.ItemSizeFlags{
		HasExpiry:        policy.Expiry != nil,
		HasSlidingTTL:    policy.SlidingTTL != nil,
		IsCompressed:     isCompressed,
		CompressedLength: len(payload),
	})
	if policy.MaxSize != nil && estimated > *policy.MaxSize {
		return nil, 0, &CacheError{Kind: ErrItemTooLarge, Op: "put", Err: fmt.Errorf("estimated size %d exceeds max_size %d", estimated, *policy.MaxSize)}
	}

	now := time.Now()
	var expiry *time.Time
	if policy.Expiry != nil {
		t := now.Add(*policy.Expiry)
		expiry = &t
	}

	item := &storage.Item{
		Value:            payload,
		Expiry:           expiry,
		SlidingTTL:       policy.SlidingTTL,
		Priority:         policy.Priority,
		CreatedAt:        now,
		LastAccessedAt:   now,
		AccessCount:      0,
		IsCompressed:     isCompressed,
		OriginalSize:     originalSize,
		CompressionRatio: ratio,
		IsEncrypted:      isEncrypted,
		Tags:             tags,
	}
	return item, estimated, nil
}

// commitPut records analytics, delegates to the adapter, and triggers an
// eviction check.
func (e *Engine) commitPut(ctx context.Context, key string, item *storage.Item, size int) error {
	e.analytics.RecordPut(key, size, int(item.Priority), item.CreatedAt, item.Expiry)

	if err := e.adapter.Put(ctx, key, item); err != nil {
		return &CacheError{Kind: ErrStorageError, Op: "put", Key: key, Err: err}
	}
	e.metrics.IncrementCounter("puts_total", 1, nil)
	if item.IsCompressed {
		e.metrics.RecordHistogram("compression_ratio", item.CompressionRatio, nil)
	}

	e.triggerEviction(ctx)
	return nil
}

// compressPayload decides and applies compression. Only string values
// are candidates: Auto applies the entropy heuristic, Always compresses
// every string, Never (and any non-string value) skips compression
// entirely. When async is set and the payload clears the engine's
// threshold, the gzip work runs on the codec worker pool instead of
// inline.
func (e *Engine) compressPayload(ctx context.Context, data []byte, value interface{}, policy Policy, async bool) (payload []byte, isCompressed bool, originalSize int, ratio float64, err error) {
	originalSize = len(data)
	if policy.Compression == CompressionNever {
		return data, false, originalSize, 0, nil
	}

	str, isString := value.(string)
	attempt := isString && policy.Compression == CompressionAlways
	if policy.Compression == CompressionAuto && isString {
		attempt = codec.ShouldCompress(str)
	}
	if !attempt {
		return data, false, originalSize, 0, nil
	}

	var compressed []byte
	var cerr error
	if async && originalSize >= e.asyncThreshold {
		compressed, cerr = e.codecPool.Compress(ctx, data, policy.CompressionLevel)
	} else {
		compressed, cerr = codec.Compress(data, policy.CompressionLevel)
	}
	if cerr != nil {
		return data, false, originalSize, 0, cerr
	}
	if policy.Compression != CompressionAlways && !codec.WorthKeeping(originalSize, len(compressed)) {
		return data, false, originalSize, 0, nil
	}
	return compressed, true, originalSize, codec.Ratio(originalSize, len(compressed)), nil
}
