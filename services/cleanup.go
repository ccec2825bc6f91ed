// Package services implements the auxiliary components that sit beside
// the cache engine rather than inside it: periodic cleanup, preloading,
// bidirectional synchronization, and scheduled eviction. Each is
// parameterised over a *cachekit.Engine handle rather than a global
// singleton.
package services

import (
	"context"
	"time"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/observability"
)

// CleanupWorker periodically purges expired items from an engine.
type CleanupWorker struct {
	engine   *cachekit.Engine
	interval time.Duration
	logger   observability.Logger

	stop chan struct{}
	done chan struct{}
}

// NewCleanupWorker creates a worker that calls engine.PurgeExpired every
// interval once started.
func NewCleanupWorker(engine *cachekit.Engine, interval time.Duration, logger observability.Logger) *CleanupWorker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &CleanupWorker{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the worker loop in a goroutine. Stop blocks until the loop
// has exited.
func (w *CleanupWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				n, err := w.engine.PurgeExpired(ctx)
				if err != nil {
					w.logger.Warn("cleanup pass failed", map[string]interface{}{"error": err.Error()})
					continue
				}
				if n > 0 {
					w.logger.Info("cleanup pass removed expired items", map[string]interface{}{"count": n})
				}
			}
		}
	}()
}

// Stop signals the worker loop to exit and waits for it to do so.
func (w *CleanupWorker) Stop() {
	close(w.stop)
	<-w.done
}
