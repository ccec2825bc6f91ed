package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordHitMiss(t *testing.T) {
	a := New(16)
	a.RecordMiss("k")
	a.RecordPut("k", 10, 1, time.Now(), nil)
	a.RecordHit("k")
	a.RecordHit("k")

	s := a.Summary(10)
	assert.EqualValues(t, 1, s.MissCount)
	assert.EqualValues(t, 2, s.HitCount)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 0.001)
}

func TestRecordPutAdjustsTotalSize(t *testing.T) {
	a := New(0)
	now := time.Now()
	a.RecordPut("k", 100, 1, now, nil)
	assert.EqualValues(t, 100, a.TotalSize())

	a.RecordPut("k", 40, 1, now, nil)
	assert.EqualValues(t, 40, a.TotalSize(), "second put for same key adjusts by new-old, not adds")
}

func TestRecordDeleteSubtractsSize(t *testing.T) {
	a := New(0)
	a.RecordPut("k", 50, 1, time.Now(), nil)
	a.RecordDelete("k")
	assert.EqualValues(t, 0, a.TotalSize())
	assert.Equal(t, 0, a.EntryCount())
}

func TestRecordClearResetsTotals(t *testing.T) {
	a := New(0)
	a.RecordPut("a", 10, 1, time.Now(), nil)
	a.RecordPut("b", 20, 1, time.Now(), nil)
	a.RecordClear()
	assert.EqualValues(t, 0, a.TotalSize())
	assert.Equal(t, 0, a.EntryCount())
}

func TestMaxSizeSeenNeverDecreases(t *testing.T) {
	a := New(0)
	now := time.Now()
	a.RecordPut("a", 1000, 1, now, nil)
	a.RecordPut("a", 10, 1, now, nil)
	s := a.Summary(0)
	assert.EqualValues(t, 1000, s.MaxSizeSeen)
}

func TestResetMetricsZeroesEverything(t *testing.T) {
	a := New(4)
	a.RecordHit("k")
	a.RecordPut("k", 5, 1, time.Now(), nil)
	a.ResetMetrics()

	s := a.Summary(10)
	assert.Zero(t, s.HitCount)
	assert.Zero(t, s.TotalSize)
	assert.Zero(t, s.EntryCount)
}

func TestSnapshotIsADefensiveCopy(t *testing.T) {
	a := New(0)
	a.RecordPut("k", 5, 1, time.Now(), nil)
	snap := a.Snapshot()
	snap["k"] = KeyStats{EstimatedSize: 999}

	assert.EqualValues(t, 5, a.TotalSize(), "mutating the snapshot must not affect the live store")
}

func TestSummaryTopKOrdering(t *testing.T) {
	a := New(0)
	now := time.Now()
	a.RecordPut("small", 10, 1, now, nil)
	a.RecordPut("big", 1000, 1, now, nil)
	a.RecordPut("medium", 100, 1, now, nil)

	s := a.Summary(2)
	assert.Len(t, s.LargestItems, 2)
	assert.Equal(t, "big", s.LargestItems[0].Key)
	assert.Equal(t, "medium", s.LargestItems[1].Key)
}
