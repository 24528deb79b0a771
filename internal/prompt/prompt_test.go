package prompt

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/model"
)

const supportYAML = `
version: "2.0"
type: structured
variables:
  product: string
  tone:
    type: enum
    values: [formal, casual]
    default: formal
  limit:
    type: integer
    required: false
metadata:
  created_by: support-team
  tags: [support, billing]
prompt:
  system_role: You support {{.product}} customers.
  behavior: Keep a {{.tone}} tone.
  restrictions: Never share internal notes.
  format: Answer in {{.limit}} bullet points or fewer.
  few_shots:
    - input: Where is my order?
      output: Let me check that for you.
    - input:
        - {role: user, content: Hi}
        - {role: assistant, content: Hello!}
        - {role: user, content: Refund?}
      output: Refunds take {{.days}} days.
  user: "{{.question}}"
  escalation: Escalate to {{upperSnake .team}}.
`

func supportVars() map[string]any {
	return map[string]any{
		"product":  "Acme",
		"question": "My card was charged twice.",
		"days":     5,
		"team":     "billing ops",
		"limit":    "3",
	}
}

func mustParse(t *testing.T, name, src string) *Prompt {
	t.Helper()
	p, err := Parse(name, []byte(src))
	require.NoError(t, err)
	return p
}

func TestParseStructured(t *testing.T) {
	p := mustParse(t, "support", supportYAML)
	assert.Equal(t, "2.0", p.Version)
	assert.Equal(t, Structured, p.Kind)
	assert.Equal(t, "support-team", p.Meta.CreatedBy)
	assert.Equal(t, []string{"support", "billing"}, p.Meta.Tags)
	assert.Equal(t, []string{
		SectionSystemRole, SectionBehavior, SectionRestrictions, SectionFormat,
		SectionFewShots, SectionUser, "escalation",
	}, p.Sections())

	require.Len(t, p.Variables, 3)
	assert.Equal(t, "product", p.Variables[0].Name)
	assert.True(t, p.Variables[0].IsRequired())
	assert.Equal(t, "enum", p.Variables[1].Type)
	assert.False(t, p.Variables[2].IsRequired())
}

func TestRenderStructured(t *testing.T) {
	p := mustParse(t, "support", supportYAML)
	out, err := p.Render(supportVars())
	require.NoError(t, err)

	want := []model.Message{
		{Role: model.RoleSystem, Content: "You support Acme customers.\n\nKeep a formal tone.\n\n" +
			"RESTRICTIONS:\nNever share internal notes.\n\nFORMAT:\nAnswer in 3 bullet points or fewer."},
		{Role: model.RoleUser, Content: "Where is my order?"},
		{Role: model.RoleAssistant, Content: "Let me check that for you."},
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: "Hello!"},
		{Role: model.RoleUser, Content: "Refund?"},
		{Role: model.RoleAssistant, Content: "Refunds take 5 days."},
		{Role: model.RoleUser, Content: "My card was charged twice."},
		{Role: model.RoleSystem, Content: "ESCALATION:\nEscalate to BILLING_OPS."},
	}
	if diff := cmp.Diff(want, out.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderSelectedSections(t *testing.T) {
	p := mustParse(t, "support", supportYAML)
	out, err := p.Render(supportVars(), SectionBehavior, SectionUser)
	require.NoError(t, err)
	assert.Equal(t, []model.Message{
		{Role: model.RoleSystem, Content: "Keep a formal tone."},
		{Role: model.RoleUser, Content: "My card was charged twice."},
	}, out.Messages)

	_, err = p.Render(supportVars(), SectionUser, "nope")
	var se *SectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"nope"}, se.Unknown)
	assert.Contains(t, se.Available, "escalation")
}

func TestRenderMissingVariables(t *testing.T) {
	p := mustParse(t, "support", supportYAML)

	vars := supportVars()
	delete(vars, "product")
	_, err := p.Render(vars)
	var ve *VariableError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "product", ve.Name)

	vars = supportVars()
	delete(vars, "team")
	_, err = p.Render(vars)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "escalation", te.Section)
}

func TestRenderFreeform(t *testing.T) {
	p := mustParse(t, "note", `
type: freeform
prompt:
  intro: Hello {{.name}}.
  body: "{{truncateWords 3 .text}}"
  quote: 'Say "{{escapeLLM .text}}"'
`)
	assert.Equal(t, []string{"intro", "body", "quote"}, p.Sections())
	vars := map[string]any{"name": "Ada", "text": "The quick \"brown\" fox"}

	out, err := p.Render(vars)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada.\n\nThe quick \"brown\"...\n\nSay \"The quick \\\"brown\\\" fox\"", out.Text)

	out, err = p.Render(vars, "body", "intro")
	require.NoError(t, err)
	assert.Equal(t, "The quick \"brown\"...\n\nHello Ada.", out.Text)
}

func TestParseFreeformScalarAndNestedName(t *testing.T) {
	p := mustParse(t, "greet", "greet:\n  type: freeform\n  prompt: Hi {{.name}}\n")
	assert.Equal(t, Freeform, p.Kind)
	assert.Equal(t, []string{"template"}, p.Sections())
	out, err := p.Render(map[string]any{"name": "Bo"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bo", out.Text)
}

const plannerYAML = `
type: hybrid
prompt:
  persona: "{{.name}} the helper"
  rules:
    - be kind to {{.user}}
    - limit: 3
  config:
    temperature: 0.2
    label: "{{upperSnake .user}}"
`

func TestRenderHybrid(t *testing.T) {
	p := mustParse(t, "planner", plannerYAML)
	out, err := p.Render(map[string]any{"name": "Ada", "user": "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"persona", "rules", "config"}, out.Keys)
	want := map[string]any{
		"persona": "Ada the helper",
		"rules":   []any{"be kind to bob", map[string]any{"limit": 3}},
		"config":  map[string]any{"temperature": 0.2, "label": "BOB"},
	}
	if diff := cmp.Diff(want, out.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	out, err = p.Render(map[string]any{"name": "Ada", "user": "bob"}, "persona")
	require.NoError(t, err)
	assert.Equal(t, []string{"persona"}, out.Keys)

	p.SetMaxDepth(0)
	_, err = p.Render(map[string]any{"name": "Ada", "user": "bob"}, "rules")
	assert.ErrorContains(t, err, "nests deeper")
}

func TestParseErrors(t *testing.T) {
	for name, src := range map[string]string{
		"bad yaml":     "prompt: [",
		"bad type":     "type: poem\nprompt: {}",
		"list content": "type: structured\nprompt: [a, b]",
		"bad vars":     "variables: [a]\nprompt: {}",
		"empty":        "",
	} {
		_, err := Parse("x", []byte(src))
		assert.Error(t, err, name)
	}
}

func TestValidate(t *testing.T) {
	f := false
	defs := []Variable{
		{Name: "s", Type: "string"},
		{Name: "n", Type: "integer"},
		{Name: "x", Type: "float"},
		{Name: "ok", Type: "boolean"},
		{Name: "tags", Type: "list"},
		{Name: "opts", Type: "dict"},
		{Name: "when", Type: "date"},
		{Name: "mode", Type: "enum", Values: []any{"fast", "slow"}, Default: "slow"},
		{Name: "note", Type: "string", Required: &f},
		{Name: "count", Type: "integer", Required: &f},
	}
	got, err := Validate(defs, map[string]any{
		"s":     42,
		"n":     "7",
		"x":     2,
		"ok":    "1",
		"tags":  "a, b",
		"opts":  `{"k": "v"}`,
		"when":  "2026-05-01",
		"extra": true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"s":     "42",
		"n":     7,
		"x":     2.0,
		"ok":    true,
		"tags":  []any{"a", "b"},
		"opts":  map[string]any{"k": "v"},
		"when":  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		"mode":  "slow",
		"note":  "",
		"count": 0,
		"extra": true,
	}, got)
}

func TestValidateErrors(t *testing.T) {
	enum := Variable{Name: "mode", Type: "enum", Values: []any{"fast", "slow"}}
	for name, tc := range map[string]struct {
		def Variable
		in  map[string]any
	}{
		"missing required": {Variable{Name: "q", Type: "string"}, nil},
		"bad integer":      {Variable{Name: "n", Type: "integer"}, map[string]any{"n": "seven"}},
		"bad dict":         {Variable{Name: "d", Type: "dict"}, map[string]any{"d": "[1]"}},
		"bad date":         {Variable{Name: "w", Type: "date"}, map[string]any{"w": "May 1"}},
		"enum":             {enum, map[string]any{"mode": "medium"}},
	} {
		_, err := Validate([]Variable{tc.def}, tc.in)
		var ve *VariableError
		require.True(t, errors.As(err, &ve), name)
		assert.Equal(t, tc.def.Name, ve.Name, name)
	}
}

func TestFewShotsFunc(t *testing.T) {
	got := fewShots([]any{
		map[string]any{"input": "2+2", "output": "4", "reasoning": "addition"},
		map[string]any{"input": "3+3", "output": "6"},
	})
	assert.Equal(t, "Example 1:\nInput: 2+2\nOutput: 4\nReasoning: addition\n\nExample 2:\nInput: 3+3\nOutput: 6\n", got)
}

func TestAddTo(t *testing.T) {
	cx := compose.New()

	structured, err := mustParse(t, "support", supportYAML).Render(supportVars())
	require.NoError(t, err)
	require.NoError(t, structured.AddTo(cx, model.SectionType{}))
	system := cx.Section(model.System)
	require.Len(t, system, 2)
	assert.Equal(t, "ESCALATION:\nEscalate to BILLING_OPS.", system[1].Text)
	assert.Len(t, cx.GetMessages(""), 7)

	hybrid, err := mustParse(t, "planner", plannerYAML).Render(map[string]any{"name": "Ada", "user": "bob"})
	require.NoError(t, err)
	require.NoError(t, hybrid.AddTo(cx, model.SectionType{}, compose.Required()))
	persona := cx.Section(model.NewSectionType("persona"))
	require.Len(t, persona, 1)
	assert.Equal(t, "Ada the helper", persona[0].Text)
	assert.True(t, persona[0].Required)
	assert.JSONEq(t, `["be kind to bob", {"limit": 3}]`, cx.Section(model.NewSectionType("rules"))[0].Text)

	free := Rendered{Kind: Freeform, Text: "Be brief."}
	require.NoError(t, free.AddTo(cx, model.SectionType{}))
	require.NoError(t, free.AddTo(cx, model.NewSectionType("notes")))
	assert.Equal(t, "Be brief.", cx.Section(model.Instructions)[0].Text)
	assert.Len(t, cx.Section(model.NewSectionType("notes")), 1)
}
