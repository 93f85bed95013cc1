package statcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNoRun is returned by RedisPublisher.Latest when nothing has been published.
var ErrNoRun = errors.New("statcache: no published run")

// RedisPublisher mirrors run summaries into Redis. For each run it writes
//
//	<prefix>run:<run_id>  summary JSON, expiring after TTL
//	<prefix>latest        the current run ID
//
// and announces the run ID on the <prefix>runs channel.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher wraps an existing client. A zero ttl keeps run keys forever.
func NewRedisPublisher(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl}
}

// Name implements the runner sink interface.
func (p *RedisPublisher) Name() string { return "redis" }

// RunKey returns the key holding the summary of runID.
func (p *RedisPublisher) RunKey(runID string) string { return p.prefix + "run:" + runID }

// LatestKey returns the key holding the current run ID.
func (p *RedisPublisher) LatestKey() string { return p.prefix + "latest" }

// Channel returns the pub/sub channel run IDs are announced on.
func (p *RedisPublisher) Channel() string { return p.prefix + "runs" }

// Publish writes snap's summary and marks it as the latest run.
func (p *RedisPublisher) Publish(ctx context.Context, snap *Snapshot) error {
	body, err := json.Marshal(snap.Summary())
	if err != nil {
		return fmt.Errorf("statcache: marshal summary: %w", err)
	}
	if err := p.client.Set(ctx, p.RunKey(snap.RunID()), body, p.ttl).Err(); err != nil {
		return fmt.Errorf("statcache: redis set run: %w", err)
	}
	if err := p.client.Set(ctx, p.LatestKey(), snap.RunID(), 0).Err(); err != nil {
		return fmt.Errorf("statcache: redis set latest: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(), snap.RunID()).Err(); err != nil {
		return fmt.Errorf("statcache: redis publish: %w", err)
	}
	return nil
}

// Latest reads back the summary of the most recently published run.
func (p *RedisPublisher) Latest(ctx context.Context) (Summary, error) {
	id, err := p.client.Get(ctx, p.LatestKey()).Result()
	if errors.Is(err, redis.Nil) {
		return Summary{}, ErrNoRun
	}
	if err != nil {
		return Summary{}, fmt.Errorf("statcache: redis get latest: %w", err)
	}
	return p.Run(ctx, id)
}

// Run reads back the summary of runID.
func (p *RedisPublisher) Run(ctx context.Context, runID string) (Summary, error) {
	body, err := p.client.Get(ctx, p.RunKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, fmt.Errorf("statcache: run %s: %w", runID, ErrNoRun)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("statcache: redis get run: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return Summary{}, fmt.Errorf("statcache: decode run %s: %w", runID, err)
	}
	return s, nil
}
