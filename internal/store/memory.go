package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rcliao/agent-context/internal/model"
)

// MemoryBackend keeps records in process. Values are copied on the way in
// and out so callers never share maps or slices with the backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]model.Memory
	seq     int64
	ids     *idSource
}

// NewMemory returns an empty in-process backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]model.Memory), ids: newIDSource()}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Put(_ context.Context, m model.Memory) (model.Memory, error) {
	m = stamp(m.Clone())
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.records[m.Key]; ok {
		m.ID, m.Seq = prev.ID, prev.Seq
	} else {
		b.seq++
		m.ID, m.Seq = b.ids.next(), b.seq
	}
	b.records[m.Key] = m
	return m.Clone(), nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (model.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.records[key]
	if !ok {
		return model.Memory{}, notFound(key)
	}
	return m.Clone(), nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[key]; !ok {
		return notFound(key)
	}
	delete(b.records, key)
	return nil
}

func (b *MemoryBackend) List(_ context.Context, f Filter) ([]model.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Memory
	for _, m := range b.records {
		if f.Match(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (b *MemoryBackend) Close() error { return nil }
