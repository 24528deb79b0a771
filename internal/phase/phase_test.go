package phase

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
)

func TestAllowsDeclaredTransitions(t *testing.T) {
	a := &Phase{Name: "A", TransitionsTo: []string{"B"}}
	registered := []string{"A", "B", "C"}

	for _, policy := range []Policy{Unrestricted, Terminal} {
		require.NoError(t, Allows(a, "B", registered, policy))

		err := Allows(a, "C", registered, policy)
		var te *model.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, model.LayerPhase, te.Layer)
		assert.Equal(t, []string{"B"}, te.Allowed)
	}
}

func TestAllowsDeclaredButUnregistered(t *testing.T) {
	a := &Phase{Name: "A", TransitionsTo: []string{"B", "ghost"}}
	for _, policy := range []Policy{Unrestricted, Terminal} {
		err := Allows(a, "ghost", []string{"A", "B"}, policy)
		var te *model.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, model.LayerPhase, te.Layer)
		assert.Contains(t, te.Error(), "not registered")
	}
}

func TestAllowsUnrestrictedPolicy(t *testing.T) {
	open := &Phase{Name: "A"}
	registered := []string{"C", "A", "B"}

	require.NoError(t, Allows(open, "B", registered, Unrestricted))
	require.NoError(t, Allows(open, "A", registered, Unrestricted))

	err := Allows(open, "Z", registered, Unrestricted)
	var te *model.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{"A", "B", "C"}, te.Allowed)
	assert.Contains(t, te.Error(), "not registered")
}

func TestAllowsTerminalPolicy(t *testing.T) {
	open := &Phase{Name: "A"}
	err := Allows(open, "B", []string{"A", "B"}, Terminal)
	var te *model.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "terminal", Terminal.String())
	assert.Contains(t, te.Error(), "terminal")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Unrestricted, p)
	p, err = ParsePolicy(" Terminal ")
	require.NoError(t, err)
	assert.Equal(t, Terminal, p)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestInstructionsAndIncludes(t *testing.T) {
	calls := 0
	p := &Phase{
		Instructions:     "static",
		InstructionsFunc: func() string { calls++; return "dynamic" },
		Includes:         []model.SectionType{model.Messages},
	}
	assert.Equal(t, "dynamic", p.ResolveInstructions())
	assert.Equal(t, "dynamic", p.ResolveInstructions())
	assert.Equal(t, 2, calls)

	assert.True(t, p.IncludesType(model.NewSectionType(" messages ")))
	assert.False(t, p.IncludesType(model.Tools))
	assert.True(t, (&Phase{}).IncludesType(model.Tools))
}

func TestClone(t *testing.T) {
	p := &Phase{Name: "A", TransitionsTo: []string{"B"}, MemoryQuery: &MemoryQuery{Query: "q"}}
	c := p.Clone()
	c.TransitionsTo[0] = "X"
	c.MemoryQuery.Query = "changed"
	assert.Equal(t, "B", p.TransitionsTo[0])
	assert.Equal(t, "q", p.MemoryQuery.Query)
}

func TestLoadDefinitions(t *testing.T) {
	doc := `
phases:
  - name: intake
    system: You are a support agent.
    instructions: Collect the customer's problem.
    includes: [messages, tools]
    memory_includes: [customer_profile]
    memory_query:
      query: past tickets
      filters: {kind: ticket}
      top_k: 3
    max_history: 6
    transitions_to: [resolve]
  - name: resolve
`
	phases, err := LoadDefinitions(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, phases, 2)

	in := phases[0]
	assert.Equal(t, "intake", in.Name)
	assert.Equal(t, "Collect the customer's problem.", in.ResolveInstructions())
	assert.Equal(t, []model.SectionType{model.Messages, model.Tools}, in.Includes)
	assert.Equal(t, []string{"customer_profile"}, in.MemoryIncludes)
	require.NotNil(t, in.MemoryQuery)
	assert.Equal(t, 3, in.MemoryQuery.TopK)
	assert.Equal(t, "ticket", in.MemoryQuery.Filters["kind"])
	assert.Equal(t, 6, in.MaxHistory)
	assert.Equal(t, []string{"resolve"}, in.TransitionsTo)

	assert.Empty(t, phases[1].TransitionsTo)
}

func TestLoadDefinitionsErrors(t *testing.T) {
	cases := map[string]string{
		"missing name": "phases:\n  - system: x\n",
		"duplicate":    "phases:\n  - name: a\n  - name: a\n",
		"negative":     "phases:\n  - name: a\n    max_history: -1\n",
		"bad yaml":     "phases: [\n",
	}
	for name, doc := range cases {
		_, err := LoadDefinitions(strings.NewReader(doc))
		assert.Error(t, err, name)
	}

	phases, err := LoadDefinitions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, phases)
}
