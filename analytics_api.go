package cachekit

import (
	"time"

	"github.com/kraklabs/cachekit/analytics"
)

// AnalyticsSummary is the derived, point-in-time view exposed by
// GetAnalyticsSummary.
type AnalyticsSummary = analytics.Summary

// KeyUsage pairs a key with one of its usage dimensions for a top-N list.
type KeyUsage = analytics.KeyUsage

// defaultTopN is used by the individual top-N accessors; GetAnalyticsSummary
// lets callers choose their own N.
const defaultTopN = 10

// HitCount returns the number of recorded cache hits.
func (e *Engine) HitCount() int64 { return e.analytics.Summary(0).HitCount }

// MissCount returns the number of recorded cache misses.
func (e *Engine) MissCount() int64 { return e.analytics.Summary(0).MissCount }

// HitRate returns hits / (hits + misses), or 0 if there have been none.
func (e *Engine) HitRate() float64 { return e.analytics.Summary(0).HitRate }

// TotalSize returns the current estimated total size of all cached items.
func (e *Engine) TotalSize() int64 { return e.analytics.TotalSize() }

// AverageItemSize returns total_size / entry_count, or 0 when empty.
func (e *Engine) AverageItemSize() float64 { return e.analytics.Summary(0).AverageItemSize }

// MostFrequentlyAccessedKeys returns up to the top 10 keys by access count.
func (e *Engine) MostFrequentlyAccessedKeys() []KeyUsage {
	return e.analytics.Summary(defaultTopN).MostFrequentlyAccessed
}

// MostRecentlyAccessedKeys returns up to the top 10 keys by last-access time.
func (e *Engine) MostRecentlyAccessedKeys() []KeyUsage {
	return e.analytics.Summary(defaultTopN).MostRecentlyAccessed
}

// LargestItems returns up to the top 10 keys by estimated size.
func (e *Engine) LargestItems() []KeyUsage {
	return e.analytics.Summary(defaultTopN).LargestItems
}

// ResetMetrics zeroes every analytics counter and starts a fresh uptime
// epoch.
func (e *Engine) ResetMetrics() { e.analytics.ResetMetrics() }

// GetAnalyticsSummary returns the full derived analytics view, with top-N
// lists truncated to topN entries.
func (e *Engine) GetAnalyticsSummary(topN int) AnalyticsSummary {
	return e.analytics.Summary(topN)
}

// Uptime returns how long it has been since the engine's analytics were
// last reset (or created).
func (e *Engine) Uptime() time.Duration {
	return e.analytics.Summary(0).Uptime
}
