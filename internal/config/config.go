// Package config loads agent-context settings from YAML and the
// environment, and builds the runtime components they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/prompt"
	"github.com/rcliao/agent-context/internal/store"
	"github.com/rcliao/agent-context/internal/tokens"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "agent-context.yaml"

type Config struct {
	Tokens           Tokens             `yaml:"tokens"`
	Budget           Budget             `yaml:"budget"`
	TransitionPolicy string             `yaml:"transition_policy"`
	Phases           []phase.Definition `yaml:"phases"`
	Memory           Memory             `yaml:"memory"`
	Embedding        Embedding          `yaml:"embedding"`
	Logging          Logging            `yaml:"logging"`
	Provider         Provider           `yaml:"provider"`
	Metrics          Metrics            `yaml:"metrics"`
	Prompts          Prompts            `yaml:"prompts"`
}

type Tokens struct {
	Counter  string `yaml:"counter"`
	Encoding string `yaml:"encoding"`
}

type Budget struct {
	MaxTokens     int            `yaml:"max_tokens"`
	Priority      []string       `yaml:"priority"`
	Required      []string       `yaml:"required"`
	SectionLimits map[string]int `yaml:"section_limits"`
	Strict        bool           `yaml:"strict"`
}

type Memory struct {
	Backend        string  `yaml:"backend"`
	Path           string  `yaml:"path"`
	RedisAddr      string  `yaml:"redis_addr"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
	DedupPolicy    string  `yaml:"dedup_policy"`
	IngestWorkers  int     `yaml:"ingest_workers"`
}

type Embedding struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	URL      string `yaml:"url"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Provider struct {
	Model            string         `yaml:"model"`
	GenerationConfig map[string]any `yaml:"generation_config"`
}

type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

type Prompts struct {
	// Dir is the prompt registry root. Empty means the nearest
	// .agent-context/prompts above the working directory.
	Dir string `yaml:"dir"`
}

// Default returns the settings used without a config file.
func Default() Config {
	return Config{
		Tokens:  Tokens{Counter: "heuristic"},
		Memory:  Memory{Backend: "sqlite", Path: defaultDBPath()},
		Logging: Logging{Level: "warn"},
	}
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-context", "memory.db")
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// Load reads path, or DefaultFile if it exists when path is empty, then
// applies environment overrides.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	cfg := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if cfg, err = Parse(f); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment:
//
//	AGENT_CONTEXT_DB              memory.path
//	AGENT_CONTEXT_BACKEND         memory.backend
//	AGENT_CONTEXT_REDIS_ADDR      memory.redis_addr
//	AGENT_CONTEXT_EMBED_PROVIDER  embedding.provider
//	AGENT_CONTEXT_EMBED_MODEL     embedding.model
//	AGENT_CONTEXT_EMBED_URL       embedding.url
//	AGENT_CONTEXT_LOG_LEVEL       logging.level
//	AGENT_CONTEXT_MAX_TOKENS      budget.max_tokens
//	AGENT_CONTEXT_PROMPTS         prompts.dir
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Memory.Path, "AGENT_CONTEXT_DB")
	set(&c.Memory.Backend, "AGENT_CONTEXT_BACKEND")
	set(&c.Memory.RedisAddr, "AGENT_CONTEXT_REDIS_ADDR")
	set(&c.Embedding.Provider, "AGENT_CONTEXT_EMBED_PROVIDER")
	set(&c.Embedding.Model, "AGENT_CONTEXT_EMBED_MODEL")
	set(&c.Embedding.URL, "AGENT_CONTEXT_EMBED_URL")
	set(&c.Logging.Level, "AGENT_CONTEXT_LOG_LEVEL")
	set(&c.Prompts.Dir, "AGENT_CONTEXT_PROMPTS")
	if v := getenv("AGENT_CONTEXT_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AGENT_CONTEXT_MAX_TOKENS: %w", err)
		}
		c.Budget.MaxTokens = n
	}
	return nil
}

func sectionTypes(names []string) []model.SectionType {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.SectionType, len(names))
	for i, n := range names {
		out[i] = model.NewSectionType(n)
	}
	return out
}

// BudgetSpec converts the budget section.
func (c Config) BudgetSpec() budget.Spec {
	spec := budget.Spec{
		MaxTokens: c.Budget.MaxTokens,
		Priority:  sectionTypes(c.Budget.Priority),
		Required:  sectionTypes(c.Budget.Required),
		Strict:    c.Budget.Strict,
	}
	if len(c.Budget.SectionLimits) > 0 {
		spec.SectionLimits = make(map[model.SectionType]int, len(c.Budget.SectionLimits))
		for name, n := range c.Budget.SectionLimits {
			spec.SectionLimits[model.NewSectionType(name)] = n
		}
	}
	return spec
}

// Counter builds the configured token counter.
func (c Config) Counter() (tokens.Counter, error) {
	return tokens.New(c.Tokens.Counter, c.Tokens.Encoding)
}

// PhaseTemplates validates the phase definitions.
func (c Config) PhaseTemplates() ([]*phase.Phase, error) {
	return phase.FromDefinitions(c.Phases)
}

// EmbeddingSettings resolves the embedder, taking API keys from the
// environment.
func (c Config) EmbeddingSettings(getenv func(string) string) embedding.Settings {
	s := embedding.Settings{Provider: c.Embedding.Provider, Model: c.Embedding.Model, URL: c.Embedding.URL}
	switch s.Provider {
	case "openai":
		s.APIKey = getenv("OPENAI_API_KEY")
	case "genai":
		s.APIKey = getenv("GEMINI_API_KEY")
	}
	return s
}

// PromptRegistry opens the prompt registry, discovering its directory
// from the working directory when none is configured.
func (c Config) PromptRegistry(logger *zap.Logger) *prompt.Registry {
	dir := c.Prompts.Dir
	if dir == "" {
		if dir = prompt.Discover("."); dir == "" {
			dir = prompt.DirName
		}
	}
	return prompt.NewRegistry(dir, prompt.WithLogger(logger))
}

// OpenBackend opens the configured store backend.
func (c Config) OpenBackend() (store.Backend, error) {
	target := c.Memory.Path
	if c.Memory.Backend == "redis" {
		target = c.Memory.RedisAddr
	}
	return store.Open(c.Memory.Backend, target)
}

// NewMemory opens the backend and wraps it in a memory.Memory. The caller
// closes the returned backend.
func (c Config) NewMemory(ctx context.Context, logger *zap.Logger, mt *metrics.Metrics) (*memory.Memory, store.Backend, error) {
	backend, err := c.OpenBackend()
	if err != nil {
		return nil, nil, err
	}
	emb, err := embedding.New(ctx, c.EmbeddingSettings(os.Getenv))
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	opts := []memory.Option{memory.WithLogger(logger), memory.WithMetrics(mt)}
	if emb != nil {
		opts = append(opts, memory.WithEmbedder(emb))
	}
	if c.Memory.DedupThreshold > 0 {
		name := c.Memory.DedupPolicy
		if name == "" {
			name = memory.KeepNewest.String()
		}
		policy, err := memory.ParseDedupPolicy(name)
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		opts = append(opts, memory.WithDedup(c.Memory.DedupThreshold, policy))
	}
	if c.Memory.IngestWorkers > 0 {
		opts = append(opts, memory.WithIngestWorkers(c.Memory.IngestWorkers))
	}
	return memory.New(backend, opts...), backend, nil
}

// NewContext builds a compose.Context with the configured counter, budget,
// phases, transition policy and generation config.
func (c Config) NewContext(logger *zap.Logger, mt *metrics.Metrics) (*compose.Context, error) {
	counter, err := c.Counter()
	if err != nil {
		return nil, err
	}
	policy, err := phase.ParsePolicy(c.TransitionPolicy)
	if err != nil {
		return nil, err
	}
	phases, err := c.PhaseTemplates()
	if err != nil {
		return nil, err
	}
	cx := compose.New(
		compose.WithCounter(counter),
		compose.WithTransitionPolicy(policy),
		compose.WithLogger(logger),
		compose.WithMetrics(mt),
	)
	for _, p := range phases {
		if err := cx.RegisterPhase(p); err != nil {
			return nil, err
		}
	}
	cx.SetBudget(c.BudgetSpec())
	cx.SetGenerationConfig(c.Provider.GenerationConfig)
	return cx, nil
}
