package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/prompt"
	"github.com/rcliao/agent-context/internal/render"
)

const sample = `
tokens:
  counter: heuristic
budget:
  max_tokens: 2000
  priority: [system, messages]
  required: [system]
  section_limits:
    messages: 1500
transition_policy: terminal
phases:
  - name: intake
    system: Collect details.
    includes: [messages]
    transitions_to: [resolve]
  - name: resolve
    instructions: Fix it.
memory:
  backend: memory
  dedup_threshold: 0.1
provider:
  model: gemini-2.5-pro
  generation_config:
    temperature: 0.3
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	spec := cfg.BudgetSpec()
	assert.Equal(t, 2000, spec.MaxTokens)
	assert.Equal(t, []model.SectionType{model.System, model.Messages}, spec.Priority)
	assert.Equal(t, []model.SectionType{model.System}, spec.Required)
	assert.Equal(t, map[model.SectionType]int{model.Messages: 1500}, spec.SectionLimits)

	phases, err := cfg.PhaseTemplates()
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, []string{"resolve"}, phases[0].TransitionsTo)
	assert.Equal(t, "warn", cfg.Logging.Level, "defaults survive")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("budgets:\n  max_tokens: 1\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AGENT_CONTEXT_DB":             "/tmp/x.db",
		"AGENT_CONTEXT_EMBED_PROVIDER": "openai",
		"AGENT_CONTEXT_MAX_TOKENS":     "42",
		"AGENT_CONTEXT_PROMPTS":        "/srv/prompts",
		"OPENAI_API_KEY":               "sk-test",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "/tmp/x.db", cfg.Memory.Path)
	assert.Equal(t, 42, cfg.Budget.MaxTokens)
	assert.Equal(t, "/srv/prompts", cfg.PromptRegistry(nil).Dir())

	s := cfg.EmbeddingSettings(func(k string) string { return env[k] })
	assert.Equal(t, "openai", s.Provider)
	assert.Equal(t, "sk-test", s.APIKey)

	bad := Default()
	assert.Error(t, bad.ApplyEnv(func(k string) string {
		if k == "AGENT_CONTEXT_MAX_TOKENS" {
			return "lots"
		}
		return ""
	}))
}

func TestPromptRegistryDefaultsToDirName(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	assert.Equal(t, prompt.DirName, Default().PromptRegistry(nil).Dir())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, prompt.DirName), 0o755))
	got, err := filepath.EvalSymlinks(Default().PromptRegistry(nil).Dir())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(dir, prompt.DirName))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("AGENT_CONTEXT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Memory.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewContext(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	cx, err := cfg.NewContext(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"intake", "resolve"}, cx.Phases())
	assert.Equal(t, phase.Terminal, cx.TransitionPolicy())

	cx.Add(model.System, "sys")
	cx.AddUserMessage("hi")
	res, err := cx.Render(context.Background(), render.FormatGemini)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temperature": 0.3}, res.Payload.(render.GeminiPayload).GenerationConfig)

	cfg.TransitionPolicy = "sometimes"
	_, err = cfg.NewContext(nil, nil)
	assert.Error(t, err)
}

func TestNewMemory(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	mem, backend, err := cfg.NewMemory(context.Background(), nil, nil)
	require.NoError(t, err)
	defer backend.Close()
	assert.Equal(t, "memory", backend.Name())
	assert.False(t, mem.HasEmbedder())

	cfg.Memory.DedupPolicy = "sometimes"
	_, _, err = cfg.NewMemory(context.Background(), nil, nil)
	assert.Error(t, err)
}
