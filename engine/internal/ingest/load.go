package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/fleetstats/fleetstats/engine/internal/share"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// Inputs is one fully materialized input set.
type Inputs struct {
	Nodes     []types.NodeSnapshot
	Histories []types.AvailabilityHistory

	// Totals holds network totals supplied with the snapshot file, or nil
	// when the file carried none.
	Totals share.Totals

	DuplicateNodes     int
	DuplicateHistories int
}

// snapshotDocument is the object form of the snapshot file. The file may also
// be a bare array of nodes.
type snapshotDocument struct {
	Nodes  []types.NodeSnapshot `json:"nodes"`
	Totals map[string]int64     `json:"totals"`
}

// Load reads the snapshot and history files concurrently.
func Load(ctx context.Context, snapshotsPath, historiesPath string) (*Inputs, error) {
	in := &Inputs{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		nodes, totals, err := loadSnapshots(ctx, snapshotsPath)
		if err != nil {
			return err
		}
		in.Nodes, in.DuplicateNodes = dedupNodes(nodes)
		in.Totals = totals
		return nil
	})
	g.Go(func() error {
		hist, err := loadHistories(ctx, historiesPath)
		if err != nil {
			return err
		}
		in.Histories, in.DuplicateHistories = dedupHistories(hist)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if in.DuplicateNodes > 0 || in.DuplicateHistories > 0 {
		slog.Warn("ingest: duplicate ids, last occurrence kept",
			"nodes", in.DuplicateNodes, "histories", in.DuplicateHistories)
	}
	slog.Info("ingest: loaded inputs", "nodes", len(in.Nodes), "histories", len(in.Histories))
	return in, nil
}

func loadSnapshots(ctx context.Context, path string) ([]types.NodeSnapshot, share.Totals, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: snapshots: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var nodes []types.NodeSnapshot
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return nil, nil, fmt.Errorf("ingest: snapshots: decode %q: %w", path, err)
		}
		return nodes, nil, nil
	}

	var doc snapshotDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, fmt.Errorf("ingest: snapshots: decode %q: %w", path, err)
	}
	var totals share.Totals
	if len(doc.Totals) > 0 {
		totals = make(share.Totals, len(doc.Totals))
		for k, v := range doc.Totals {
			c, err := share.ParseCategory(k)
			if err != nil {
				return nil, nil, fmt.Errorf("ingest: snapshots: totals: %w", err)
			}
			totals[c] = v
		}
	}
	return doc.Nodes, totals, nil
}

func loadHistories(ctx context.Context, path string) ([]types.AvailabilityHistory, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ingest: histories: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var hist []types.AvailabilityHistory
	if err := dec.Decode(&hist); err != nil {
		return nil, fmt.Errorf("ingest: histories: decode %q: %w", path, err)
	}
	return hist, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return data, nil
}

// dedupNodes keeps the last occurrence of each ID, at the position of the
// first, and returns the number of dropped duplicates.
func dedupNodes(nodes []types.NodeSnapshot) ([]types.NodeSnapshot, int) {
	idx := make(map[string]int, len(nodes))
	out := make([]types.NodeSnapshot, 0, len(nodes))
	dups := 0
	for _, n := range nodes {
		if i, ok := idx[n.ID]; ok {
			out[i] = n
			dups++
			continue
		}
		idx[n.ID] = len(out)
		out = append(out, n)
	}
	return out, dups
}

func dedupHistories(hist []types.AvailabilityHistory) ([]types.AvailabilityHistory, int) {
	idx := make(map[string]int, len(hist))
	out := make([]types.AvailabilityHistory, 0, len(hist))
	dups := 0
	for _, h := range hist {
		if i, ok := idx[h.ID]; ok {
			out[i] = h
			dups++
			continue
		}
		idx[h.ID] = len(out)
		out = append(out, h)
	}
	return out, dups
}
