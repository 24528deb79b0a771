package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
)

func TestNewValidatesInitialPhase(t *testing.T) {
	_, err := New(WithPhases("intake", "review"), WithInitialPhase("done"))
	var te *model.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.LayerState, te.Layer)

	s, err := New(WithPhases("intake", "review", "intake"), WithInitialPhase("intake"))
	require.NoError(t, err)
	assert.Equal(t, "intake", s.Phase())
	assert.Equal(t, []string{"intake", "review"}, s.ValidPhases())
}

func TestSetPhase(t *testing.T) {
	s, err := New(WithPhases("a", "b"), WithInitialPhase("a"))
	require.NoError(t, err)

	err = s.SetPhase("c")
	var te *model.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "a", te.From)
	assert.Equal(t, "c", te.To)
	assert.Equal(t, []string{"a", "b"}, te.Allowed)
	assert.Equal(t, "a", s.Phase(), "no change on failure")

	require.NoError(t, s.SetPhase("b"))
	assert.Equal(t, "b", s.Phase())

	assert.Error(t, s.SetPhase("  "))
}

func TestFreeFormPhases(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.Nil(t, s.ValidPhases())
	require.NoError(t, s.SetPhase("anything"))
	assert.Equal(t, "anything", s.Phase())
}

func TestPaths(t *testing.T) {
	s, err := New(WithData(map[string]any{"user": map[string]any{"name": "ada"}}))
	require.NoError(t, err)

	v, ok := s.Get("user.name")
	require.True(t, ok)
	assert.Equal(t, "ada", v)

	_, ok = s.Get("user.name.first")
	assert.False(t, ok)
	_, ok = s.Get("")
	assert.False(t, ok)

	require.NoError(t, s.Set("user.prefs.theme", "dark"))
	v, _ = s.Get("user.prefs.theme")
	assert.Equal(t, "dark", v)

	// A scalar in the way is replaced by a map.
	require.NoError(t, s.Set("user.name.first", "Ada"))
	v, _ = s.Get("user.name.first")
	assert.Equal(t, "Ada", v)

	assert.Error(t, s.Set("", 1))

	assert.True(t, s.Delete("user.prefs.theme"))
	assert.False(t, s.Delete("user.prefs.theme"))
	assert.False(t, s.Delete("nope.deeper"))
	assert.Equal(t, []string{"user"}, s.Keys())
}

func TestWithDataIsCopied(t *testing.T) {
	seed := map[string]any{"list": []any{"a"}, "m": map[string]any{"k": 1}}
	s, err := New(WithData(seed))
	require.NoError(t, err)

	seed["m"].(map[string]any)["k"] = 2
	seed["list"].([]any)[0] = "z"

	v, _ := s.Get("m.k")
	assert.Equal(t, 1, v)
	v, _ = s.Get("list")
	assert.Equal(t, []any{"a"}, v)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s, err := New(WithInitialPhase("p1"))
	require.NoError(t, err)
	require.NoError(t, s.Set("cart.items", []any{"apple"}))
	require.NoError(t, s.Set("cart.total", 3))

	snap := s.Snapshot()

	require.NoError(t, s.Set("cart.total", 10))
	require.NoError(t, s.SetPhase("p2"))

	assert.Equal(t, "p1", snap.Phase())
	v, _ := snap.Get("cart.total")
	assert.Equal(t, 3, v)

	items, _ := snap.Get("cart.items")
	items.([]any)[0] = "pear"
	again, _ := snap.Get("cart.items")
	assert.Equal(t, []any{"apple"}, again, "reads hand out copies")

	data := snap.Data()
	data["cart"] = "gone"
	v, _ = snap.Get("cart.total")
	assert.Equal(t, 3, v)

	require.NoError(t, s.Restore(snap))
	assert.Equal(t, "p1", s.Phase())
	v, _ = s.Get("cart.total")
	assert.Equal(t, 3, v)
}

func TestRestoreRespectsPhaseSet(t *testing.T) {
	free, err := New(WithInitialPhase("elsewhere"))
	require.NoError(t, err)

	s, err := New(WithPhases("a"), WithInitialPhase("a"))
	require.NoError(t, err)
	assert.Error(t, s.Restore(free.Snapshot()))
	assert.Equal(t, "a", s.Phase())
}

func TestDecode(t *testing.T) {
	type profile struct {
		Name  string   `json:"name"`
		Age   int      `json:"age"`
		Tags  []string `json:"tags"`
		Admin bool     `json:"admin"`
	}
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Set("user", map[string]any{
		"name":  "ada",
		"age":   "36",
		"tags":  []any{"math", "engines"},
		"admin": 1,
	}))

	var p profile
	require.NoError(t, s.Decode("user", &p))
	assert.Equal(t, profile{Name: "ada", Age: 36, Tags: []string{"math", "engines"}, Admin: true}, p)

	var fromSnap profile
	require.NoError(t, s.Snapshot().Decode("user", &fromSnap))
	assert.Equal(t, p, fromSnap)

	assert.Error(t, s.Decode("missing", &p))
	assert.Error(t, s.Snapshot().Decode("missing", &p))
}
