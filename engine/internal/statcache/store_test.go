package statcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func build(t *testing.T) *Snapshot {
	t.Helper()
	nodes, hist := fleet(999)
	return Build(nodes, hist, sixMonths(), t0)
}

func TestStore_CurrentBeforePublish(t *testing.T) {
	st := NewStore(time.Hour)
	assert.Nil(t, st.Current())
	_, ok := st.CurrentEntry()
	assert.False(t, ok)
}

func TestStore_PublishAndGet(t *testing.T) {
	st := NewStore(time.Hour)
	st.now = fixedClock(t0)
	snap := build(t)
	st.Publish(snap)

	assert.Same(t, snap, st.Current())
	e, ok := st.Get(snap.RunID())
	require.True(t, ok)
	assert.Equal(t, t0, e.PublishedAt)
	assert.Equal(t, 1, st.Count())
}

func TestStore_PublishSupersedes(t *testing.T) {
	st := NewStore(time.Hour)
	st.now = fixedClock(t0)
	first := build(t)
	st.Publish(first)

	st.now = fixedClock(t0.Add(time.Minute))
	second := build(t)
	st.Publish(second)

	assert.Same(t, second, st.Current())
	_, ok := st.Get(first.RunID())
	assert.True(t, ok, "superseded runs stay readable until evicted")

	list := st.List()
	require.Len(t, list, 2)
	assert.Same(t, second, list[0].Snapshot)
}

func TestStore_EvictKeepsCurrent(t *testing.T) {
	st := NewStore(time.Minute)
	st.now = fixedClock(t0)
	old := build(t)
	st.Publish(old)
	st.now = fixedClock(t0.Add(30 * time.Second))
	cur := build(t)
	st.Publish(cur)

	removed := st.Evict(t0.Add(10 * time.Minute))
	assert.Equal(t, 1, removed)
	_, ok := st.Get(old.RunID())
	assert.False(t, ok)
	_, ok = st.Get(cur.RunID())
	assert.True(t, ok)
	assert.Same(t, cur, st.Current())
}

func TestStore_EvictNothingFresh(t *testing.T) {
	st := NewStore(time.Hour)
	st.now = fixedClock(t0)
	st.Publish(build(t))
	st.Publish(build(t))
	assert.Equal(t, 0, st.Evict(t0.Add(time.Minute)))
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	st := NewStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
