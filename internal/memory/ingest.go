package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/agent-context/internal/chunker"
)

// IngestOptions controls Ingest.
type IngestOptions struct {
	Chunking chunker.Options
	Meta     map[string]any
	Scope    string
}

// Ingest splits text into pieces and stores each under
// "<prefix>#<n>" (n from 1). Embeddings are computed concurrently; writes
// happen in piece order so insertion order follows the document.
// Each piece carries source, chunk, start_line and end_line metadata.
func (m *Memory) Ingest(ctx context.Context, prefix, text string, opts IngestOptions) ([]StoreResult, error) {
	pieces := chunker.Split(text, opts.Chunking)
	if len(pieces) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(pieces))
	if m.embedder != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(m.ingestWorkers, 1))
		for i, p := range pieces {
			g.Go(func() error {
				v, err := m.embedder.Embed(gctx, p.Text)
				if err != nil {
					return fmt.Errorf("memory: embed chunk %d of %q: %w", i+1, prefix, err)
				}
				vecs[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	results := make([]StoreResult, 0, len(pieces))
	for i, p := range pieces {
		meta := map[string]any{
			"source":     prefix,
			"chunk":      i + 1,
			"start_line": p.StartLine,
			"end_line":   p.EndLine,
		}
		storeOpts := []StoreOption{WithMeta(opts.Meta), WithMeta(meta), WithScope(opts.Scope)}
		if vecs[i] != nil {
			storeOpts = append(storeOpts, WithEmbedding(vecs[i]))
		}
		res, err := m.Store(ctx, fmt.Sprintf("%s#%d", prefix, i+1), p.Text, storeOpts...)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	m.logger.Debug("ingested document", zap.String("key", prefix), zap.Int("chunks", len(pieces)))
	return results, nil
}
