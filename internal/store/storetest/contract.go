// Package storetest holds the behavioural contract every store.Backend
// must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

// RunBackendContract runs the suite against fresh backends produced by
// newBackend. Each subtest gets its own backend.
func RunBackendContract(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	ctx := context.Background()
	written := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)

	t.Run("Put and Get", func(t *testing.T) {
		b := newBackend(t)
		expires := written.Add(time.Hour)
		stored, err := b.Put(ctx, model.Memory{
			Key:       "greeting",
			Value:     "hello world",
			Meta:      map[string]any{"lang": "en", "n": 3},
			Embedding: []float32{0.5, -0.25, 1},
			WrittenAt: written,
			ExpiresAt: &expires,
			Scope:     "session-1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, stored.ID)
		assert.Positive(t, stored.Seq)

		got, err := b.Get(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, "hello world", got.Value)
		assert.Equal(t, "session-1", got.Scope)
		assert.Equal(t, []float32{0.5, -0.25, 1}, got.Embedding)
		assert.True(t, model.MatchesMeta(got.Meta, map[string]any{"lang": "en", "n": 3}), "meta = %v", got.Meta)
		assert.True(t, written.Equal(got.WrittenAt), "written_at = %v", got.WrittenAt)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
	})

	t.Run("Get Missing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Overwrite Keeps Identity", func(t *testing.T) {
		b := newBackend(t)
		first, err := b.Put(ctx, model.Memory{Key: "k", Value: "v1", Meta: map[string]any{"a": "x"}})
		require.NoError(t, err)
		_, err = b.Put(ctx, model.Memory{Key: "other", Value: "o"})
		require.NoError(t, err)
		second, err := b.Put(ctx, model.Memory{Key: "k", Value: "v2"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Seq, second.Seq)

		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Value)
		assert.Empty(t, got.Meta)

		all, err := b.List(ctx, store.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "k", all[0].Key)
	})

	t.Run("List Order And Filters", func(t *testing.T) {
		b := newBackend(t)
		for _, m := range []model.Memory{
			{Key: "notes/b", Value: "2", Meta: map[string]any{"kind": "fact"}, Scope: "s1"},
			{Key: "notes/a", Value: "1", Meta: map[string]any{"kind": "todo"}, Scope: "s1"},
			{Key: "misc", Value: "3", Meta: map[string]any{"kind": "fact"}, Scope: "s2"},
		} {
			_, err := b.Put(ctx, m)
			require.NoError(t, err)
		}

		all, err := b.List(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes/b", "notes/a", "misc"}, keys(all))

		facts, err := b.List(ctx, store.Filter{Meta: map[string]any{"kind": "fact"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes/b", "misc"}, keys(facts))

		scoped, err := b.List(ctx, store.Filter{Scope: "s1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes/b", "notes/a"}, keys(scoped))

		prefixed, err := b.List(ctx, store.Filter{Prefix: "notes/", Meta: map[string]any{"kind": "todo"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes/a"}, keys(prefixed))
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Put(ctx, model.Memory{Key: "gone", Value: "soon"})
		require.NoError(t, err)

		require.NoError(t, b.Delete(ctx, "gone"))
		_, err = b.Get(ctx, "gone")
		assert.ErrorIs(t, err, model.ErrNotFound)

		all, err := b.List(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)

		assert.ErrorIs(t, b.Delete(ctx, "gone"), model.ErrNotFound)
	})

	t.Run("Reinsert After Delete", func(t *testing.T) {
		b := newBackend(t)
		a, err := b.Put(ctx, model.Memory{Key: "a", Value: "1"})
		require.NoError(t, err)
		require.NoError(t, b.Delete(ctx, "a"))
		c, err := b.Put(ctx, model.Memory{Key: "c", Value: "2"})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, c.ID)
	})
}

func keys(ms []model.Memory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key
	}
	return out
}
