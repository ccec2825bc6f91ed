package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/observability"
)

// PlatformSignal identifies an external condition that can trigger a
// scheduled eviction pass. Platform integration itself is out of scope;
// these are hook points a host application wires up.
type PlatformSignal int

const (
	SignalIdle PlatformSignal = iota
	SignalBackground
	SignalCharging
	SignalWifi
)

// TimeOfDay is a scheduled daily run time, hour/minute in the local time
// zone of time.Now.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// SchedulerConfig configures an EvictionScheduler.
type SchedulerConfig struct {
	// Interval, when non-zero, runs an eviction pass on a fixed period.
	Interval time.Duration
	// TimesOfDay, when non-empty, runs a pass at each scheduled time daily.
	TimesOfDay []TimeOfDay
	// Jitter bounds a random delay added before each scheduled run, to
	// avoid a thundering herd across many engine instances.
	Jitter time.Duration
	// MinInterval is the minimum gap enforced between any two runs,
	// regardless of trigger source (interval, time-of-day, or signal).
	MinInterval time.Duration
	Logger      observability.Logger
}

// EvictionScheduler runs an engine's eviction pass on a timer, at
// scheduled times of day, or on demand via Signal, subject to a
// minimum-interval guard.
type EvictionScheduler struct {
	engine *cachekit.Engine
	config SchedulerConfig
	logger observability.Logger

	lastRun time.Time
	signal  chan PlatformSignal
	stop    chan struct{}
	done    chan struct{}
}

// NewEvictionScheduler creates a scheduler bound to engine.
func NewEvictionScheduler(engine *cachekit.Engine, config SchedulerConfig) *EvictionScheduler {
	logger := config.Logger
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &EvictionScheduler{
		engine: engine,
		config: config,
		logger: logger,
		signal: make(chan PlatformSignal, 8),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Signal notifies the scheduler of a platform condition (e.g. device
// went idle). The scheduler decides whether to act on it given
// MinInterval.
func (s *EvictionScheduler) Signal(sig PlatformSignal) {
	select {
	case s.signal <- sig:
	default:
	}
}

// Start runs the scheduler loop in a goroutine.
func (s *EvictionScheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		var intervalC <-chan time.Time
		if s.config.Interval > 0 {
			ticker := time.NewTicker(s.config.Interval)
			defer ticker.Stop()
			intervalC = ticker.C
		}

		todTimer := s.nextTimeOfDayTimer()
		defer todTimer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-intervalC:
				s.runIfDue(ctx)
			case <-todTimer.C:
				s.runIfDue(ctx)
				todTimer = s.nextTimeOfDayTimer()
			case <-s.signal:
				s.runIfDue(ctx)
			}
		}
	}()
}

// Stop signals the scheduler loop to exit and waits for it to do so.
func (s *EvictionScheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *EvictionScheduler) runIfDue(ctx context.Context) {
	now := time.Now()
	if s.config.MinInterval > 0 && !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.config.MinInterval {
		return
	}
	if s.config.Jitter > 0 {
		delay := time.Duration(rand.Int63n(int64(s.config.Jitter)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	s.lastRun = time.Now()
	result, err := s.engine.RunEviction(ctx)
	if err != nil {
		s.logger.Warn("scheduled eviction pass failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("scheduled eviction pass complete", map[string]interface{}{
		"ran":         result.Ran,
		"evicted":     len(result.Evicted),
		"final_size":  result.FinalSize,
		"final_count": result.FinalCount,
	})
}

func (s *EvictionScheduler) nextTimeOfDayTimer() *time.Timer {
	if len(s.config.TimesOfDay) == 0 {
		return time.NewTimer(24 * time.Hour * 365)
	}
	now := time.Now()
	var next time.Time
	for _, tod := range s.config.TimesOfDay {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return time.NewTimer(time.Until(next))
}
