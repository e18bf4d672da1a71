package detect

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RateWindow holds the request timestamps of one client inside the window,
// oldest first
type RateWindow struct {
	timestamps []time.Time
}

// Len returns the number of timestamps currently in the window
func (w *RateWindow) Len() int {
	return len(w.timestamps)
}

// add appends at and drops every timestamp older than window relative to the
// newest timestamp seen
func (w *RateWindow) add(at time.Time, window time.Duration) int {
	w.timestamps = append(w.timestamps, at)

	latest := at
	for _, ts := range w.timestamps {
		if ts.After(latest) {
			latest = ts
		}
	}
	return w.prune(latest.Add(-window))
}

// prune drops every timestamp at or before cutoff
func (w *RateWindow) prune(cutoff time.Time) int {
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
	return len(kept)
}

func (w *RateWindow) reset() {
	w.timestamps = w.timestamps[:0]
}

// RateTracker keeps one RateWindow per client address. The least recently
// seen clients are dropped once maxClients is reached.
type RateTracker struct {
	window  time.Duration
	windows *lru.Cache[string, *RateWindow]
}

// NewRateTracker creates a tracker for the given window
func NewRateTracker(window time.Duration, maxClients int) (*RateTracker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rate window must be positive, got %v", window)
	}
	cache, err := lru.New[string, *RateWindow](maxClients)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate window cache: %w", err)
	}
	return &RateTracker{window: window, windows: cache}, nil
}

// Record adds a request for ip at time at and returns the count in the window
func (t *RateTracker) Record(ip string, at time.Time) int {
	w, ok := t.windows.Get(ip)
	if !ok {
		w = &RateWindow{}
		t.windows.Add(ip, w)
	}
	return w.add(at, t.window)
}

// Reset empties the window for ip
func (t *RateTracker) Reset(ip string) {
	if w, ok := t.windows.Peek(ip); ok {
		w.reset()
	}
}

// Count prunes the window for ip against now and returns the number of
// timestamps still inside it
func (t *RateTracker) Count(ip string, now time.Time) int {
	if w, ok := t.windows.Peek(ip); ok {
		return w.prune(now.Add(-t.window))
	}
	return 0
}

// Clients returns the number of tracked clients
func (t *RateTracker) Clients() int {
	return t.windows.Len()
}

// Window returns the configured window length
func (t *RateTracker) Window() time.Duration {
	return t.window
}
