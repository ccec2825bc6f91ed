package services

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/observability"
)

// PreloadState is a key's position in the preloader's per-key state
// machine: NotStarted -> InProgress -> {Completed, Failed, Cancelled}.
type PreloadState int

const (
	PreloadNotStarted PreloadState = iota
	PreloadInProgress
	PreloadCompleted
	PreloadFailed
	PreloadCancelled
)

func (s PreloadState) String() string {
	switch s {
	case PreloadNotStarted:
		return "not_started"
	case PreloadInProgress:
		return "in_progress"
	case PreloadCompleted:
		return "completed"
	case PreloadFailed:
		return "failed"
	case PreloadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PreloadEvent is emitted whenever a key's PreloadState changes.
type PreloadEvent struct {
	Key   string
	State PreloadState
	Err   error
}

// defaultParallelism bounds how many producers run concurrently unless
// WithParallelism overrides it.
const defaultParallelism = 5

// Producer fetches the value to preload for a key.
type Producer[T any] func(ctx context.Context) (T, error)

// PreloaderOption configures a Preloader.
type PreloaderOption func(*preloaderConfig)

type preloaderConfig struct {
	parallelism int
	limiter     *rate.Limiter
	logger      observability.Logger
}

// WithParallelism overrides the default bounded-parallelism level.
func WithParallelism(n int) PreloaderOption {
	return func(c *preloaderConfig) { c.parallelism = n }
}

// WithDispatchLimiter paces how quickly new producers are launched, to
// avoid a thundering herd against whatever backend the producers read
// from.
func WithDispatchLimiter(limiter *rate.Limiter) PreloaderOption {
	return func(c *preloaderConfig) { c.limiter = limiter }
}

// WithPreloaderLogger installs a custom logger.
func WithPreloaderLogger(logger observability.Logger) PreloaderOption {
	return func(c *preloaderConfig) { c.logger = logger }
}

// Run executes producers with bounded parallelism, putting each result
// into engine under its key, and streaming state-change events to the
// returned channel. The channel is closed once every key reaches a
// terminal state or ctx is cancelled.
func Run[T any](ctx context.Context, engine *cachekit.Engine, producers map[string]Producer[T], progress func(PreloadEvent), opts ...PreloaderOption) <-chan PreloadEvent {
	cfg := preloaderConfig{parallelism: defaultParallelism, logger: observability.NewNoopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parallelism <= 0 {
		cfg.parallelism = defaultParallelism
	}

	events := make(chan PreloadEvent, len(producers))
	sem := make(chan struct{}, cfg.parallelism)
	var wg sync.WaitGroup

	emit := func(ev PreloadEvent) {
		events <- ev
		if progress != nil {
			progress(ev)
		}
	}

	for key, producer := range producers {
		key, producer := key, producer
		wg.Add(1)
		go func() {
			defer wg.Done()

			if cfg.limiter != nil {
				if err := cfg.limiter.Wait(ctx); err != nil {
					emit(PreloadEvent{Key: key, State: PreloadCancelled, Err: err})
					return
				}
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				emit(PreloadEvent{Key: key, State: PreloadCancelled, Err: ctx.Err()})
				return
			}
			defer func() { <-sem }()

			emit(PreloadEvent{Key: key, State: PreloadInProgress})

			value, err := producer(ctx)
			if err != nil {
				cfg.logger.Warn("preload producer failed", map[string]interface{}{"key": key, "error": err.Error()})
				emit(PreloadEvent{Key: key, State: PreloadFailed, Err: err})
				return
			}
			if err := cachekit.Put(ctx, engine, key, value); err != nil {
				cfg.logger.Warn("preload put failed", map[string]interface{}{"key": key, "error": err.Error()})
				emit(PreloadEvent{Key: key, State: PreloadFailed, Err: err})
				return
			}
			emit(PreloadEvent{Key: key, State: PreloadCompleted})
		}()
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	return events
}
