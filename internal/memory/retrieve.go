package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// RetrieveParams selects entries for Retrieve.
type RetrieveParams struct {
	Query string
	// QueryEmbedding skips embedding Query when set.
	QueryEmbedding []float32
	// Filters must all match by exact scalar equality.
	Filters map[string]any
	Scope   string
	TopK    int
}

// Hit is a retrieved entry with its relevance score. Vector hits carry the
// cosine similarity; lexical hits score 1.
type Hit struct {
	Memory model.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// Retrieve narrows live entries by metadata filters, then ranks them. With
// an embedding available for the query, embedded entries are ranked by
// cosine similarity descending; otherwise entries whose value contains the
// query (case-insensitive) are returned. Ties keep insertion order.
func (m *Memory) Retrieve(ctx context.Context, p RetrieveParams) ([]Hit, error) {
	topK := p.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	cands, err := m.List(ctx, store.Filter{Meta: p.Filters, Scope: p.Scope})
	m.metrics.MemoryOp("retrieve", err)
	if err != nil {
		return nil, err
	}

	qv := p.QueryEmbedding
	if len(qv) == 0 && m.embedder != nil && p.Query != "" {
		qv, err = m.embedder.Embed(ctx, p.Query)
		if err != nil {
			return nil, fmt.Errorf("memory: embed query: %w", err)
		}
	}

	var hits []Hit
	if len(qv) > 0 {
		hits = rankByVector(cands, qv)
	} else {
		hits = matchLexical(cands, p.Query)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func rankByVector(cands []model.Memory, qv []float32) []Hit {
	var hits []Hit
	for _, c := range cands {
		if !c.HasEmbedding() {
			continue
		}
		hits = append(hits, Hit{Memory: c, Score: embedding.CosineSimilarity(qv, c.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Memory.Seq < hits[j].Memory.Seq
	})
	return hits
}

// matchLexical keeps candidates in their insertion order.
func matchLexical(cands []model.Memory, query string) []Hit {
	q := strings.ToLower(query)
	var hits []Hit
	for _, c := range cands {
		if q == "" || strings.Contains(strings.ToLower(c.Value), q) {
			hits = append(hits, Hit{Memory: c, Score: 1})
		}
	}
	return hits
}
