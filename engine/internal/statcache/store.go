package statcache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a published snapshot together with the time it was published.
type Entry struct {
	Snapshot    *Snapshot
	PublishedAt time.Time
}

// Store holds the current snapshot and recently superseded ones, keyed by run
// ID. Superseded runs are evicted once they are older than the TTL; the
// current run is never evicted.
type Store struct {
	current atomic.Pointer[Entry]

	mu   sync.RWMutex
	runs map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewStore creates a Store retaining superseded runs for ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		runs: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Publish makes snap the current snapshot. Readers that already hold the
// previous snapshot keep a consistent view of it.
func (s *Store) Publish(snap *Snapshot) {
	e := &Entry{Snapshot: snap, PublishedAt: s.now()}
	s.mu.Lock()
	s.runs[snap.RunID()] = e
	s.mu.Unlock()
	s.current.Store(e)
}

// Current returns the most recently published snapshot, or nil before the
// first publish.
func (s *Store) Current() *Snapshot {
	if e := s.current.Load(); e != nil {
		return e.Snapshot
	}
	return nil
}

// CurrentEntry is Current with its publish time.
func (s *Store) CurrentEntry() (*Entry, bool) {
	e := s.current.Load()
	return e, e != nil
}

// Get returns the entry for a run ID. The run may be superseded.
func (s *Store) Get(runID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[runID]
	return e, ok
}

// List returns all retained entries, newest first.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.runs))
	for _, e := range s.runs {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out
}

// Count returns the number of retained runs, including the current one.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Evict removes superseded runs published at or before now minus TTL.
// It returns the number of runs removed.
func (s *Store) Evict(now time.Time) int {
	cur := s.current.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.runs {
		if e == cur {
			continue
		}
		if !e.PublishedAt.After(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("statcache: evicted superseded runs", "count", n)
			}
		}
	}
}
