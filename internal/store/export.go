package store

import (
	"context"

	"github.com/rcliao/agent-context/internal/model"
)

// ExportAll returns every record matching f in insertion order, expired
// ones included.
func ExportAll(ctx context.Context, b Backend, f Filter) ([]model.Memory, error) {
	return b.List(ctx, f)
}

// Import writes memories into b in the given order. Existing keys are
// overwritten; new keys are appended after the current tail.
func Import(ctx context.Context, b Backend, memories []model.Memory) (int, error) {
	imported := 0
	for _, m := range memories {
		if _, err := b.Put(ctx, m); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
