package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetstats/fleetstats/engine/internal/ingest"
	"github.com/fleetstats/fleetstats/engine/internal/metrics"
	"github.com/fleetstats/fleetstats/engine/internal/share"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

// DefaultSinkTimeout bounds a single sink delivery.
const DefaultSinkTimeout = 10 * time.Second

// Sink receives every published snapshot.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap *statcache.Snapshot) error
}

// LoadFunc produces one input set.
type LoadFunc func(ctx context.Context) (*ingest.Inputs, error)

// FileLoader returns a LoadFunc reading the given snapshot and history files.
func FileLoader(snapshotsPath, historiesPath string) LoadFunc {
	return func(ctx context.Context) (*ingest.Inputs, error) {
		return ingest.Load(ctx, snapshotsPath, historiesPath)
	}
}

// Runner executes runs. It is safe for concurrent use; runs are serialized.
type Runner struct {
	load    LoadFunc
	store   *statcache.Store
	metrics *metrics.Metrics
	now     func() time.Time

	runMu sync.Mutex

	mu          sync.RWMutex
	opts        statcache.Options
	sinks       []Sink
	sinkTimeout time.Duration
}

// New creates a Runner. m may be nil.
func New(load LoadFunc, store *statcache.Store, opts statcache.Options, m *metrics.Metrics, sinks ...Sink) *Runner {
	return &Runner{
		load:        load,
		store:       store,
		metrics:     m,
		now:         time.Now,
		opts:        opts,
		sinks:       sinks,
		sinkTimeout: DefaultSinkTimeout,
	}
}

// SetOptions replaces the build options used by subsequent runs.
func (r *Runner) SetOptions(opts statcache.Options) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

// AddSink registers an additional sink for subsequent runs.
func (r *Runner) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// RunOnce performs one full run and returns the published snapshot.
func (r *Runner) RunOnce(ctx context.Context) (*statcache.Snapshot, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.RLock()
	opts := r.opts
	sinks := append([]Sink(nil), r.sinks...)
	timeout := r.sinkTimeout
	r.mu.RUnlock()

	start := r.now()
	in, err := r.load(ctx)
	if err != nil {
		r.metrics.RunFailed(r.now().Sub(start))
		return nil, fmt.Errorf("runner: load: %w", err)
	}

	if in.Totals != nil {
		opts.Totals = mergeTotals(in.Totals, share.ComputeTotals(in.Nodes))
	}

	snap := statcache.Build(in.Nodes, in.Histories, opts, r.now())
	r.store.Publish(snap)
	r.metrics.RunPublished(snap, r.now().Sub(start), in.DuplicateNodes)

	d := snap.Diagnostics()
	slog.Info("runner: run published",
		"run_id", snap.RunID(),
		"nodes", d.Nodes,
		"missing_history", d.MissingHistory,
		"insufficient_samples", d.InsufficientSamples,
		"invalid_samples", d.InvalidSamples,
		"insufficient_network", d.InsufficientNetwork,
		"inconsistencies", d.Inconsistencies,
	)

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		err := s.Publish(sctx, snap)
		cancel()
		if err != nil {
			r.metrics.SinkFailed(s.Name())
			slog.Warn("runner: sink failed", "sink", s.Name(), "run_id", snap.RunID(), "err", err)
		}
	}
	return snap, nil
}

// Run performs a run immediately, then again on every tick of interval (when
// positive) and on every receive from trigger. Failed runs are logged and
// the previous snapshot stays current. Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) {
	r.runLogged(ctx)

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.runLogged(ctx)
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Error("runner: run failed, keeping previous snapshot", "err", err)
	}
}

// mergeTotals prefers supplied totals and fills categories they omit from the
// computed ones.
func mergeTotals(supplied, computed share.Totals) share.Totals {
	out := make(share.Totals, len(share.Categories))
	for c, v := range computed {
		out[c] = v
	}
	for c, v := range supplied {
		out[c] = v
	}
	return out
}
