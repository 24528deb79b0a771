package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/provider/providertest"
	"github.com/rcliao/agent-context/internal/render"
	"github.com/rcliao/agent-context/internal/session"
)

const doc = `
sections:
  - type: system
    content: You are a support agent.
    required: true
  - type: notes
    items: [order 42, shipped monday]
messages:
  - {role: user, content: Where is my order?}
state:
  phase: intake
  phases: [intake, resolve]
phases:
  - name: intake
    includes: [system, messages, notes]
    memory_includes: [customer]
    transitions_to: [resolve]
  - name: resolve
    includes: [messages]
scratchpad:
  customer: Ada
generation_config:
  temperature: 0.1
`

func TestDocumentBuild(t *testing.T) {
	d, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	assert.True(t, d.needsMemory(config.Default()))

	mem := memory.New(nil)
	cx, err := d.Build(config.Default(), mem, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "intake", cx.CurrentPhase())
	assert.Equal(t, []string{"intake", "resolve"}, cx.Phases())

	res, err := cx.Render(context.Background(), render.FormatText)
	require.NoError(t, err)
	want := strings.Join([]string{
		"<system>\nYou are a support agent.\n</system>",
		"<notes>\norder 42\nshipped monday\n</notes>",
		"<messages>\nuser: Where is my order?\n</messages>",
		"<customer>\nAda\n</customer>",
	}, "\n")
	assert.Equal(t, want, res.Payload.(render.TextPayload).Text)

	res, err = cx.Render(context.Background(), render.FormatGemini)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temperature": 0.1}, res.Payload.(render.GeminiPayload).GenerationConfig)
}

func TestDocumentErrors(t *testing.T) {
	_, err := ParseDocument(strings.NewReader("section: []\n"))
	assert.Error(t, err, "unknown keys are rejected")

	d, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	_, err = d.Build(config.Default(), nil, nil, nil)
	assert.Error(t, err, "scratchpad without memory")

	d, err = ParseDocument(strings.NewReader("sections:\n  - content: x\n"))
	require.NoError(t, err)
	_, err = d.Build(config.Default(), nil, nil, nil)
	assert.Error(t, err)

	d, err = ParseDocument(strings.NewReader("state:\n  phase: x\n  phases: [a]\n"))
	require.NoError(t, err)
	_, err = d.Build(config.Default(), nil, nil, nil)
	var te *model.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestDocumentBudgetOverride(t *testing.T) {
	d, err := ParseDocument(strings.NewReader("budget:\n  max_tokens: 7\n  strict: true\n"))
	require.NoError(t, err)
	cx, err := d.Build(config.Default(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cx.Budget().MaxTokens)
	assert.True(t, cx.Budget().Strict)
}

func TestDocumentPrompts(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "triage", "versions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.0.yaml"), []byte(`
type: structured
variables:
  product: string
prompt:
  system_role: You support {{.product}} customers.
  user: Hello
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.1.yaml"), []byte(`
type: freeform
prompt:
  intro: Triage tickets for {{.product}}.
`), 0o644))

	cfg := config.Default()
	cfg.Prompts.Dir = root
	d, err := ParseDocument(strings.NewReader(`
prompts:
  - name: triage
    version: "1.0"
    vars: {product: Acme}
    required: true
  - name: triage
    vars: {product: Acme}
    into: notes
sections:
  - type: system
    content: Be brief.
`))
	require.NoError(t, err)
	cx, err := d.Build(cfg, nil, nil, nil)
	require.NoError(t, err)

	system := cx.Section(model.System)
	require.Len(t, system, 2)
	assert.Equal(t, "You support Acme customers.", system[0].Text)
	assert.True(t, system[0].Required)
	assert.Equal(t, "Be brief.", system[1].Text)
	assert.Equal(t, "Triage tickets for Acme.", cx.Section(model.NewSectionType("notes"))[0].Text)
	assert.Len(t, cx.GetMessages(""), 1)

	d, err = ParseDocument(strings.NewReader("prompts:\n  - name: missing\n"))
	require.NoError(t, err)
	_, err = d.Build(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	got := parseFilters(map[string]string{"n": "3", "ok": "true", "name": "ada", "quoted": `"x"`})
	assert.Equal(t, map[string]any{"n": float64(3), "ok": true, "name": "ada", "quoted": `"x"`}, got)
	assert.Nil(t, parseFilters(nil))

	meta, err := parseMeta(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, meta)
	_, err = parseMeta("[1]")
	assert.Error(t, err)
}

func TestChatLoop(t *testing.T) {
	d, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	cx, err := d.Build(config.Default(), memory.New(nil), nil, nil)
	require.NoError(t, err)

	sess := session.New(cx, providertest.Text("It ships today.", "Glad to help."))
	in := strings.NewReader("Any update?\n/phase bogus\n/phase resolve\n\nThanks\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), sess, in, &out, false))

	text := out.String()
	assert.Contains(t, text, "It ships today.\n")
	assert.Contains(t, text, "[phase resolve]")
	assert.Contains(t, text, "Glad to help.\n")
	assert.Equal(t, "resolve", cx.CurrentPhase())
	assert.Len(t, cx.GetMessages(model.RoleAssistant), 2)
}

func TestChatLoopStream(t *testing.T) {
	cx, err := (&Document{}).Build(config.Default(), nil, nil, nil)
	require.NoError(t, err)
	sess := session.New(cx, providertest.Text("one two"))

	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), sess, strings.NewReader("hi\n/tokens\n"), &out, true))
	assert.Contains(t, out.String(), "one two\n")
	assert.Contains(t, out.String(), "tokens]")
	assert.Equal(t, []model.Message{{Role: model.RoleAssistant, Content: "one two"}}, cx.GetMessages(model.RoleAssistant))
}
