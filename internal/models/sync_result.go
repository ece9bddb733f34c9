package models

import "sync/atomic"

// SynchronizationResult aggregates per-run counters. Safe for concurrent use.
type SynchronizationResult struct {
	added   atomic.Int64
	updated atomic.Int64
	removed atomic.Int64
	failed  atomic.Int64
}

// SyncCounters is the serialisable snapshot of a SynchronizationResult
type SyncCounters struct {
	Added   int64 `json:"added"`
	Updated int64 `json:"updated"`
	Removed int64 `json:"removed"`
	Failed  int64 `json:"failed"`
}

func (r *SynchronizationResult) IncreaseAdded() {
	if r != nil {
		r.added.Add(1)
	}
}

func (r *SynchronizationResult) IncreaseUpdated() {
	if r != nil {
		r.updated.Add(1)
	}
}

func (r *SynchronizationResult) IncreaseRemoved() {
	if r != nil {
		r.removed.Add(1)
	}
}

func (r *SynchronizationResult) IncreaseFailed() {
	if r != nil {
		r.failed.Add(1)
	}
}

// Merge adds the counters of other to r
func (r *SynchronizationResult) Merge(other *SynchronizationResult) {
	if r == nil || other == nil {
		return
	}
	c := other.Snapshot()
	r.added.Add(c.Added)
	r.updated.Add(c.Updated)
	r.removed.Add(c.Removed)
	r.failed.Add(c.Failed)
}

// Snapshot returns the current counter values
func (r *SynchronizationResult) Snapshot() SyncCounters {
	if r == nil {
		return SyncCounters{}
	}
	return SyncCounters{
		Added:   r.added.Load(),
		Updated: r.updated.Load(),
		Removed: r.removed.Load(),
		Failed:  r.failed.Load(),
	}
}
