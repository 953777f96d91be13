package telemetry

import (
	"context"
	"sync"
)

// #region static-feed

// StaticFeed serves a fixed snapshot from memory. It backs tests, the sweep
// CLI, and any deployment without a live telemetry backend.
type StaticFeed struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStaticFeed creates a feed holding the given snapshot.
func NewStaticFeed(snap Snapshot) *StaticFeed {
	return &StaticFeed{snap: snap.Clone()}
}

// Snapshot returns a deep copy of the held samples.
func (f *StaticFeed) Snapshot(_ context.Context) (Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap.Clone(), nil
}

// Set replaces the held snapshot.
func (f *StaticFeed) Set(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap.Clone()
}

// #endregion static-feed
