package cachekit

import (
	"context"
	"sync"

	"github.com/kraklabs/cachekit/analytics"
	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/eviction"
	"github.com/kraklabs/cachekit/observability"
	"github.com/kraklabs/cachekit/storage"
)

// defaultRecentOpsCapacity bounds the analytics recent-operations ring
// buffer when an EngineOption doesn't override it.
const defaultRecentOpsCapacity = 256

// Engine is the cache engine facade: it orchestrates policy resolution,
// the codec layer, size estimation, analytics, the storage adapter, and
// eviction behind the typed Put/Get API.
type Engine struct {
	adapter       storage.Adapter
	analytics     *analytics.Analytics
	eviction      *eviction.Engine
	logger        observability.Logger
	metrics       observability.MetricsClient
	tracer        observability.Tracer
	defaultPolicy Policy
	encryptionKey []byte
	serializer    Serializer

	codecPool      *codec.Pool
	asyncThreshold int

	closeOnce sync.Once
	closeCh   chan struct{}
	tasks     sync.WaitGroup
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*engineConfig)

type engineConfig struct {
	logger               observability.Logger
	metrics              observability.MetricsClient
	tracer               observability.Tracer
	defaultPolicy        Policy
	evictionConfig       *eviction.Config
	encryption           *codec.EncryptionOptions
	recentOpsCapacity    int
	recentOpsCapacitySet bool
	codecWorkers         int
	asyncThreshold       int
	serializer           Serializer
}

// WithLogger installs a custom Logger. Defaults to a no-op logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = logger }
}

// WithMetrics installs a custom MetricsClient. Defaults to a no-op client.
func WithMetrics(metrics observability.MetricsClient) EngineOption {
	return func(c *engineConfig) { c.metrics = metrics }
}

// WithTracer installs a Tracer that wraps Put/Get/Delete and eviction
// passes in spans. Defaults to a no-op tracer; pair with
// observability.InitTracing for OTLP export.
func WithTracer(tracer observability.Tracer) EngineOption {
	return func(c *engineConfig) { c.tracer = tracer }
}

// WithDefaultPolicy sets the policy used when a call site supplies none.
// Defaults to DefaultPolicy().
func WithDefaultPolicy(policy Policy) EngineOption {
	return func(c *engineConfig) { c.defaultPolicy = policy }
}

// WithEviction enables size/count pressure eviction with the given
// configuration. Without this option the engine never evicts on its own.
func WithEviction(config eviction.Config) EngineOption {
	return func(c *engineConfig) { c.evictionConfig = &config }
}

// WithEncryption enables per-item encryption for policies that request
// it, provided the wired adapter reports CapEncryption.
func WithEncryption(opts codec.EncryptionOptions) EngineOption {
	return func(c *engineConfig) { c.encryption = &opts }
}

// WithRecentOpsCapacity bounds the analytics recent-operation ring
// buffer. 0 disables history tracking entirely.
func WithRecentOpsCapacity(n int) EngineOption {
	return func(c *engineConfig) { c.recentOpsCapacity = n; c.recentOpsCapacitySet = true }
}

// WithSerializer overrides the value encoding used for stored payloads.
// Defaults to JSONSerializer. Use LookupSerializer to resolve one
// registered by name.
func WithSerializer(s Serializer) EngineOption {
	return func(c *engineConfig) { c.serializer = s }
}

// WithCodecWorkers bounds how many PutAsync/GetAsync codec operations run
// concurrently. Defaults to GOMAXPROCS.
func WithCodecWorkers(n int) EngineOption {
	return func(c *engineConfig) { c.codecWorkers = n }
}

// WithAsyncThreshold sets the payload size, in bytes, above which
// PutAsync/GetAsync offload compression to the codec worker pool.
// Defaults to codec.DefaultAsyncThreshold.
func WithAsyncThreshold(n int) EngineOption {
	return func(c *engineConfig) { c.asyncThreshold = n }
}

// NewEngine wires a storage adapter into a ready-to-use cache engine.
func NewEngine(adapter storage.Adapter, opts ...EngineOption) (*Engine, error) {
	if adapter == nil {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "new_engine", Err: errNilAdapter}
	}

	cfg := engineConfig{
		logger:        observability.NewNoopLogger(),
		metrics:       observability.NewNoopMetrics(),
		tracer:        observability.NewNoopTracer(),
		defaultPolicy: DefaultPolicy(),
		serializer:    JSONSerializer{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	recentCap := defaultRecentOpsCapacity
	if cfg.recentOpsCapacitySet {
		recentCap = cfg.recentOpsCapacity
	}

	asyncThreshold := codec.DefaultAsyncThreshold
	if cfg.asyncThreshold > 0 {
		asyncThreshold = cfg.asyncThreshold
	}

	e := &Engine{
		adapter:        adapter,
		analytics:      analytics.New(recentCap),
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		tracer:         cfg.tracer,
		defaultPolicy:  cfg.defaultPolicy,
		serializer:     cfg.serializer,
		codecPool:      codec.NewPool(cfg.codecWorkers),
		asyncThreshold: asyncThreshold,
		closeCh:        make(chan struct{}),
	}

	if cfg.encryption != nil {
		key, err := codec.ResolveKey(*cfg.encryption)
		if err != nil {
			return nil, &CacheError{Kind: ErrEncryptionError, Op: "new_engine", Err: err}
		}
		e.encryptionKey = key
	}

	if cfg.evictionConfig != nil {
		deleter := &evictionDeleter{adapter: adapter, analytics: e.analytics, logger: e.logger}
		e.eviction = eviction.New(*cfg.evictionConfig, deleter, e.logger, e.metrics)
	}

	return e, nil
}

// Close cancels outstanding background refresh tasks and waits for them
// to finish.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closeCh) })
	e.tasks.Wait()
	return nil
}

// evictionDeleter adapts the storage adapter plus analytics bookkeeping
// into the minimal Deleter the eviction engine needs, so a victim's
// removal updates accounting in the same step.
type evictionDeleter struct {
	adapter   storage.Adapter
	analytics *analytics.Analytics
	logger    observability.Logger
}

func (d *evictionDeleter) Delete(ctx context.Context, key string) error {
	if err := d.adapter.Delete(ctx, key); err != nil {
		return err
	}
	d.analytics.RecordDelete(key)
	return nil
}

// RunEviction builds a candidate snapshot from analytics and asks the
// eviction engine to run a pressure-driven pass: a no-op, zero-value
// result when no eviction engine is configured, and a no-op Result when
// the snapshot isn't currently under pressure. This is the entry point
// both Put's automatic post-write check (triggerEviction) and an
// external scheduler (services.EvictionScheduler) use, as distinct from
// the periodic-cleanup expiry purge in PurgeExpired.
func (e *Engine) RunEviction(ctx context.Context) (eviction.Result, error) {
	if e.eviction == nil {
		return eviction.Result{}, nil
	}
	ctx, span := e.tracer.StartSpan(ctx, "cache.evict")
	defer span.End()

	snap := e.analytics.Snapshot()
	candidates := make([]eviction.Candidate, 0, len(snap))
	for key, ks := range snap {
		candidates = append(candidates, eviction.Candidate{
			Key:            key,
			Priority:       ks.Priority,
			CreatedAt:      ks.CreatedAt,
			LastAccessedAt: ks.LastAccessedAt,
			AccessCount:    ks.AccessCount,
			Size:           ks.EstimatedSize,
			ExpiresAt:      ks.ExpiresAt,
		})
	}
	result, err := e.eviction.CheckAndEvict(ctx, candidates, e.analytics.TotalSize(), e.analytics.EntryCount())
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	span.SetAttribute("cache.evicted", len(result.Evicted))
	return result, nil
}

// triggerEviction is RunEviction's fire-and-forget form, used after a
// write: failure is logged rather than propagated to the caller of
// Put/PutAll.
func (e *Engine) triggerEviction(ctx context.Context) {
	if _, err := e.RunEviction(ctx); err != nil {
		e.logger.Warn("eviction pass failed", map[string]interface{}{"error": err.Error()})
	}
}

// spawnBackground runs fn in a tracked goroutine that Close() waits for,
// passing a context cancelled when the engine is closed.
func (e *Engine) spawnBackground(fn func(ctx context.Context)) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-e.closeCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		fn(ctx)
	}()
}
