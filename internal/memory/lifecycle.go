package memory

import (
	"context"
	"fmt"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// ForkOptions selects what Fork copies.
type ForkOptions struct {
	// Keys limits the copied store entries. Empty copies every live entry.
	Keys []string
	// Scratchpad copies the scratchpad as well.
	Scratchpad bool
}

// Fork returns an independent Memory on a fresh in-process backend holding
// copies of the selected live entries. Configuration carries over.
func (m *Memory) Fork(ctx context.Context, opts ForkOptions) (*Memory, error) {
	recs, err := m.selectLive(ctx, opts.Keys)
	if err != nil {
		return nil, err
	}

	forked := *m
	forked.backend = store.NewMemory()
	forked.scratch = NewScratchpad()
	if opts.Scratchpad {
		forked.scratch = m.scratch.clone(nil)
	}
	for _, rec := range recs {
		if _, err := forked.backend.Put(ctx, rec); err != nil {
			return nil, err
		}
	}
	return &forked, nil
}

// MergeFrom copies entries from other into m, overwriting by key. With no
// keys, every live entry is copied; named keys also copy matching
// scratchpad values. Dedup is not applied.
func (m *Memory) MergeFrom(ctx context.Context, other *Memory, keys ...string) (int, error) {
	recs, err := other.selectLive(ctx, keys)
	if err != nil {
		return 0, err
	}
	for i, rec := range recs {
		if _, err := m.backend.Put(ctx, rec); err != nil {
			return i, err
		}
	}
	for _, k := range keys {
		if v, ok := other.scratch.Read(k); ok {
			m.scratch.Write(k, v)
		}
	}
	return len(recs), nil
}

func (m *Memory) selectLive(ctx context.Context, keys []string) ([]model.Memory, error) {
	live, err := m.List(ctx, store.Filter{})
	if err != nil || len(keys) == 0 {
		return live, err
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []model.Memory
	for _, rec := range live {
		if want[rec.Key] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Prune deletes every stored entry, expired ones included, for which drop
// returns true.
func (m *Memory) Prune(ctx context.Context, drop func(model.Memory) bool) (int, error) {
	all, err := m.backend.List(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range all {
		if !drop(rec) {
			continue
		}
		if err := m.backend.Delete(ctx, rec.Key); err != nil {
			return removed, err
		}
		removed++
	}
	m.metrics.MemoryOp("prune", nil)
	return removed, nil
}

// PruneExpired deletes entries whose TTL has elapsed.
func (m *Memory) PruneExpired(ctx context.Context) (int, error) {
	now := m.now()
	return m.Prune(ctx, func(rec model.Memory) bool { return rec.Expired(now) })
}

// TransformFunc rewrites a stored value, e.g. to compress or summarize it.
type TransformFunc func(ctx context.Context, value string, meta map[string]any) (string, error)

// Transform replaces key's value with fn's result, keeping metadata, scope
// and TTL. The embedding is recomputed when an embedder is configured and
// dropped otherwise.
func (m *Memory) Transform(ctx context.Context, key string, fn TransformFunc) (model.Memory, error) {
	rec, err := m.Get(ctx, key)
	if err != nil {
		return model.Memory{}, err
	}
	value, err := fn(ctx, rec.Value, rec.Clone().Meta)
	if err != nil {
		return model.Memory{}, fmt.Errorf("memory: transform %q: %w", key, err)
	}

	rec.Value = value
	rec.WrittenAt = m.now().UTC()
	rec.Embedding = nil
	if m.embedder != nil {
		if rec.Embedding, err = m.embedder.Embed(ctx, value); err != nil {
			return model.Memory{}, fmt.Errorf("memory: embed %q: %w", key, err)
		}
	}
	return m.backend.Put(ctx, rec)
}
