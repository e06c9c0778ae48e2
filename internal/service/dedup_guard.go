package service

import (
	"context"
	"sync"
	"time"
)

// DedupGuard suppresses accidental re-reads of the same badge. It keeps a
// per-identifier last-sighting timestamp in memory; the state is advisory
// and does not survive a restart.
type DedupGuard struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen map[string]time.Time
}

// NewDedupGuard constructs a guard with the given suppression window.
func NewDedupGuard(window time.Duration) *DedupGuard {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &DedupGuard{
		window:   window,
		lastSeen: make(map[string]time.Time),
	}
}

// Window returns the configured suppression window.
func (g *DedupGuard) Window() time.Duration {
	return g.window
}

// Check reports whether the identifier was sighted within the window and
// slides the sighting forward to now, duplicate or not. Sliding on every
// call means a badge held in front of a reader re-triggers exactly once
// per window rather than flapping once the original sighting ages out.
// The read and the update share one critical section so near-simultaneous
// scans of the same badge from different stations cannot both pass as
// fresh. The decision depends only on identifier and time, never on
// channel or mode.
func (g *DedupGuard) Check(identifier string, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, seen := g.lastSeen[identifier]
	g.lastSeen[identifier] = now
	if !seen {
		return false, 0
	}

	since := now.Sub(last)
	return since >= 0 && since < g.window, since
}

// Forget drops the sighting for one identifier. The registration engine
// calls this when an event could not be logged, so the retry is not
// judged a duplicate of the failed attempt.
func (g *DedupGuard) Forget(identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.lastSeen, identifier)
}

// Sweep removes sightings that aged past the window and returns how many
// were dropped.
func (g *DedupGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	dropped := 0
	for identifier, last := range g.lastSeen {
		if now.Sub(last) >= g.window {
			delete(g.lastSeen, identifier)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs periodic garbage collection until the context ends.
func (g *DedupGuard) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				g.Sweep(now)
			}
		}
	}()
}
