// Package memory manages information kept outside the rendered context: a
// session scratchpad plus a durable, optionally vector-indexed store with
// near-duplicate detection.
//
// A Memory is not safe for concurrent mutation. Callers serialize access or
// work on independent instances obtained through Fork.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/logging"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// DefaultTopK is used by Retrieve when TopK is not positive.
const DefaultTopK = 5

// Memory is the facade over a store.Backend.
type Memory struct {
	backend  store.Backend
	scratch  *Scratchpad
	embedder embedding.Embedder
	dedup    *dedupConfig
	score    ScoreFunc
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	ingestWorkers int
}

// Option configures a Memory.
type Option func(*Memory)

// WithEmbedder enables vector retrieval and embeds values stored without an
// explicit embedding.
func WithEmbedder(e embedding.Embedder) Option {
	return func(m *Memory) { m.embedder = e }
}

// WithDedup treats a write whose nearest embedded neighbour lies within
// threshold cosine distance as a duplicate, resolved by policy.
func WithDedup(threshold float64, policy DedupPolicy) Option {
	return func(m *Memory) { m.dedup = &dedupConfig{threshold: threshold, policy: policy} }
}

// WithScoreFunc sets the scoring used by the KeepHighestScore policy.
func WithScoreFunc(fn ScoreFunc) Option {
	return func(m *Memory) { m.score = fn }
}

// WithClock overrides time.Now for timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) { m.logger = logging.OrNop(l) }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Memory) { m.metrics = mt }
}

// WithIngestWorkers bounds concurrent embedding calls during Ingest.
func WithIngestWorkers(n int) Option {
	return func(m *Memory) { m.ingestWorkers = n }
}

// New returns a Memory over backend. A nil backend means a fresh in-process
// store.
func New(backend store.Backend, opts ...Option) *Memory {
	if backend == nil {
		backend = store.NewMemory()
	}
	m := &Memory{
		backend:       backend,
		scratch:       NewScratchpad(),
		score:         MetaScore("score"),
		now:           time.Now,
		logger:        zap.NewNop(),
		ingestWorkers: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scratchpad returns the session scratchpad.
func (m *Memory) Scratchpad() *Scratchpad { return m.scratch }

// Backend returns the underlying store.
func (m *Memory) Backend() store.Backend { return m.backend }

// HasEmbedder reports whether vector retrieval is available.
func (m *Memory) HasEmbedder() bool { return m.embedder != nil }

// StoreOption adjusts a single Store call.
type StoreOption func(*model.Memory, *storeParams)

type storeParams struct {
	ttl time.Duration
}

// WithMeta attaches scalar metadata. Later calls merge into earlier ones.
func WithMeta(meta map[string]any) StoreOption {
	return func(rec *model.Memory, _ *storeParams) {
		if rec.Meta == nil {
			rec.Meta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			rec.Meta[k] = v
		}
	}
}

// WithEmbedding supplies a precomputed embedding; the embedder is not called.
func WithEmbedding(v []float32) StoreOption {
	return func(rec *model.Memory, _ *storeParams) {
		rec.Embedding = append([]float32(nil), v...)
	}
}

// WithTTL makes the entry invisible once d has elapsed.
func WithTTL(d time.Duration) StoreOption {
	return func(_ *model.Memory, p *storeParams) { p.ttl = d }
}

// WithScope tags the entry with a scope such as a session or agent id.
func WithScope(scope string) StoreOption {
	return func(rec *model.Memory, _ *storeParams) { rec.Scope = scope }
}

// StoreResult describes what a Store call did.
type StoreResult struct {
	Memory model.Memory `json:"memory"`
	// Duplicate is set when the dedup cache matched an existing entry.
	Duplicate bool `json:"duplicate,omitempty"`
	// MergedInto names the existing key the write was resolved against.
	MergedInto string `json:"merged_into,omitempty"`
	// Skipped is set when the duplicate was dropped without writing.
	Skipped  bool    `json:"skipped,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// Store upserts value under key. An existing key is overwritten in place
// and keeps its position in insertion order.
func (m *Memory) Store(ctx context.Context, key, value string, opts ...StoreOption) (StoreResult, error) {
	if key == "" {
		return StoreResult{}, errors.New("memory: empty key")
	}
	rec := model.Memory{Key: key, Value: value, WrittenAt: m.now().UTC()}
	var p storeParams
	for _, opt := range opts {
		opt(&rec, &p)
	}
	if p.ttl > 0 {
		exp := rec.WrittenAt.Add(p.ttl)
		rec.ExpiresAt = &exp
	}

	if !rec.HasEmbedding() && m.embedder != nil {
		vec, err := m.embedder.Embed(ctx, value)
		if err != nil {
			return StoreResult{}, fmt.Errorf("memory: embed %q: %w", key, err)
		}
		rec.Embedding = vec
	}

	res, err := m.put(ctx, rec)
	m.metrics.MemoryOp("store", err)
	return res, err
}

// put writes rec. Dedup only applies when rec.Key is not already live:
// rewriting an existing key always overwrites it.
func (m *Memory) put(ctx context.Context, rec model.Memory) (StoreResult, error) {
	if m.dedup != nil && rec.HasEmbedding() {
		exists, err := m.live(ctx, rec.Key)
		if err != nil {
			return StoreResult{}, err
		}
		if !exists {
			res, handled, err := m.resolveDuplicate(ctx, rec)
			if err != nil || handled {
				return res, err
			}
		}
	}
	stored, err := m.backend.Put(ctx, rec)
	if err != nil {
		return StoreResult{}, err
	}
	return StoreResult{Memory: stored}, nil
}

func (m *Memory) live(ctx context.Context, key string) (bool, error) {
	rec, err := m.backend.Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !rec.Expired(m.now()), nil
}

// Get returns the entry stored under key. Expired entries are reported as
// not found.
func (m *Memory) Get(ctx context.Context, key string) (model.Memory, error) {
	rec, err := m.backend.Get(ctx, key)
	m.metrics.MemoryOp("get", err)
	if err != nil {
		return model.Memory{}, err
	}
	if rec.Expired(m.now()) {
		return model.Memory{}, fmt.Errorf("%w: %s (expired)", model.ErrNotFound, key)
	}
	return rec, nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	err := m.backend.Delete(ctx, key)
	m.metrics.MemoryOp("delete", err)
	return err
}

// List returns live entries matching f in insertion order.
func (m *Memory) List(ctx context.Context, f store.Filter) ([]model.Memory, error) {
	all, err := m.backend.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := m.now()
	live := all[:0]
	for _, rec := range all {
		if !rec.Expired(now) {
			live = append(live, rec)
		}
	}
	return live, nil
}

// Len counts live entries.
func (m *Memory) Len(ctx context.Context) (int, error) {
	live, err := m.List(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}
	return len(live), nil
}
