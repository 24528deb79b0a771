package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// DedupPolicy decides what happens to a write that duplicates an existing
// entry.
type DedupPolicy int

const (
	// Skip drops the new write.
	Skip DedupPolicy = iota
	// KeepNewest overwrites the existing entry's value, metadata,
	// embedding and timestamp with the new write.
	KeepNewest
	// KeepHighestScore keeps whichever of the two scores higher under the
	// configured ScoreFunc. Ties keep the existing entry.
	KeepHighestScore
)

func (p DedupPolicy) String() string {
	switch p {
	case Skip:
		return "skip"
	case KeepNewest:
		return "keep_newest"
	case KeepHighestScore:
		return "keep_highest_score"
	}
	return fmt.Sprintf("DedupPolicy(%d)", int(p))
}

// ParseDedupPolicy accepts the String forms, with '-' and '_' interchangeable.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "skip":
		return Skip, nil
	case "keep_newest", "newest":
		return KeepNewest, nil
	case "keep_highest_score", "highest_score":
		return KeepHighestScore, nil
	}
	return Skip, fmt.Errorf("unknown dedup policy %q", s)
}

// ScoreFunc rates an entry for the KeepHighestScore policy.
type ScoreFunc func(model.Memory) float64

// MetaScore scores entries by the numeric metadata field name. Entries
// without it score 0.
func MetaScore(name string) ScoreFunc {
	return func(rec model.Memory) float64 {
		f, _ := model.Numeric(rec.Meta[name])
		return f
	}
}

type dedupConfig struct {
	threshold float64
	policy    DedupPolicy
}

// nearest finds the live embedded entry in rec's scope closest to rec,
// ignoring rec's own key: rewriting a key is an overwrite, not a duplicate.
func (m *Memory) nearest(ctx context.Context, rec model.Memory) (model.Memory, float64, bool, error) {
	cands, err := m.List(ctx, store.Filter{Scope: rec.Scope})
	if err != nil {
		return model.Memory{}, 0, false, err
	}
	var best model.Memory
	bestDist, found := 0.0, false
	for _, c := range cands {
		if c.Key == rec.Key || c.Scope != rec.Scope || !c.HasEmbedding() {
			continue
		}
		d := embedding.CosineDistance(rec.Embedding, c.Embedding)
		if !found || d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, bestDist, found, nil
}

func (m *Memory) resolveDuplicate(ctx context.Context, rec model.Memory) (StoreResult, bool, error) {
	existing, dist, ok, err := m.nearest(ctx, rec)
	if err != nil || !ok || dist >= m.dedup.threshold {
		return StoreResult{}, false, err
	}

	res := StoreResult{Duplicate: true, MergedInto: existing.Key, Distance: dist}
	m.metrics.Dedup(m.dedup.policy.String())
	m.logger.Debug("dedup match",
		zap.String("key", rec.Key),
		zap.String("existing", existing.Key),
		zap.Float64("distance", dist),
		zap.Stringer("policy", m.dedup.policy))

	keepNew := false
	switch m.dedup.policy {
	case KeepNewest:
		keepNew = true
	case KeepHighestScore:
		keepNew = m.score(rec) > m.score(existing)
	}
	if !keepNew {
		res.Memory = existing
		res.Skipped = true
		return res, true, nil
	}

	rec.Key = existing.Key
	stored, err := m.backend.Put(ctx, rec)
	if err != nil {
		return StoreResult{}, true, err
	}
	res.Memory = stored
	return res, true, nil
}
