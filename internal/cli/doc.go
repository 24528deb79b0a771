package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/prompt"
	"github.com/rcliao/agent-context/internal/state"
)

// Document is a context described in YAML:
//
//	sections:
//	  - type: system
//	    content: You are a support agent.
//	    required: true
//	messages:
//	  - {role: user, content: My order is late.}
//	state:
//	  phase: intake
//	  phases: [intake, resolve]
//	phases:
//	  - name: intake
//	    includes: [system, messages]
//	    transitions_to: [resolve]
//	prompts:
//	  - name: support
//	    version: "1.2"
//	    vars: {product: Acme}
type Document struct {
	Prompts          []DocPrompt        `yaml:"prompts"`
	Sections         []DocSection       `yaml:"sections"`
	Messages         []model.Message    `yaml:"messages"`
	State            *DocState          `yaml:"state"`
	Phases           []phase.Definition `yaml:"phases"`
	Scratchpad       map[string]any     `yaml:"scratchpad"`
	OutputSchema     any                `yaml:"output_schema"`
	GenerationConfig map[string]any     `yaml:"generation_config"`
	Budget           *config.Budget     `yaml:"budget"`
}

// DocPrompt renders a registry prompt into the context ahead of the
// document's sections.
type DocPrompt struct {
	Name     string         `yaml:"name"`
	Version  string         `yaml:"version"`
	Vars     map[string]any `yaml:"vars"`
	Sections []string       `yaml:"sections"`
	// Into names the section for freeform output. Default instructions.
	Into     string `yaml:"into"`
	Required bool   `yaml:"required"`
}

type DocSection struct {
	Type     string   `yaml:"type"`
	Content  string   `yaml:"content"`
	Items    []string `yaml:"items"`
	Required bool     `yaml:"required"`
}

type DocState struct {
	Phase  string         `yaml:"phase"`
	Phases []string       `yaml:"phases"`
	Data   map[string]any `yaml:"data"`
}

// ParseDocument decodes a context document. Unknown keys are rejected.
func ParseDocument(r io.Reader) (*Document, error) {
	var d Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &d, nil
}

// loadDocument reads path, or stdin for "-".
func loadDocument(path string) (*Document, error) {
	if path == "-" {
		return ParseDocument(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDocument(f)
}

// Build creates a Context from c and the document. Document phases are
// registered after configured ones and replace them by name. mem may be
// nil; scratchpad entries then have nowhere to go and are an error.
func (d *Document) Build(c config.Config, mem *memory.Memory, logger *zap.Logger, mt *metrics.Metrics) (*compose.Context, error) {
	if d.Budget != nil {
		c.Budget = *d.Budget
	}
	cx, err := c.NewContext(logger, mt)
	if err != nil {
		return nil, err
	}

	phases, err := phase.FromDefinitions(d.Phases)
	if err != nil {
		return nil, err
	}
	for _, p := range phases {
		if err := cx.RegisterPhase(p); err != nil {
			return nil, err
		}
	}

	if len(d.Prompts) > 0 {
		reg := c.PromptRegistry(logger)
		for _, dp := range d.Prompts {
			if err := addPrompt(cx, reg, dp); err != nil {
				return nil, err
			}
		}
	}

	for i, s := range d.Sections {
		t := model.NewSectionType(s.Type)
		if t.IsZero() {
			return nil, fmt.Errorf("section %d: missing type", i+1)
		}
		var opts []compose.EntryOption
		if s.Required {
			opts = append(opts, compose.Required())
		}
		if s.Content != "" {
			cx.Add(t, s.Content, opts...)
		}
		for _, item := range s.Items {
			cx.Add(t, item, opts...)
		}
	}
	for _, m := range d.Messages {
		cx.AddMessage(m.Role, m.Content)
	}

	if d.State != nil {
		st, err := state.New(
			state.WithPhases(d.State.Phases...),
			state.WithInitialPhase(d.State.Phase),
			state.WithData(d.State.Data),
		)
		if err != nil {
			return nil, err
		}
		cx.BindState(st)
	}

	if len(d.Scratchpad) > 0 {
		if mem == nil {
			return nil, errors.New("document has a scratchpad but no memory store is open")
		}
		for k, v := range d.Scratchpad {
			mem.Scratchpad().Write(k, v)
		}
	}
	if mem != nil {
		cx.BindMemory(mem)
	}

	if d.OutputSchema != nil {
		if err := cx.SetOutputSchema(d.OutputSchema); err != nil {
			return nil, err
		}
	}
	if len(d.GenerationConfig) > 0 {
		merged := map[string]any{}
		for k, v := range c.Provider.GenerationConfig {
			merged[k] = v
		}
		for k, v := range d.GenerationConfig {
			merged[k] = v
		}
		cx.SetGenerationConfig(merged)
	}
	return cx, nil
}

func addPrompt(cx *compose.Context, reg *prompt.Registry, dp DocPrompt) error {
	p, err := reg.Load(dp.Name, dp.Version)
	if err != nil {
		return err
	}
	out, err := p.Render(dp.Vars, dp.Sections...)
	if err != nil {
		return err
	}
	var opts []compose.EntryOption
	if dp.Required {
		opts = append(opts, compose.Required())
	}
	return out.AddTo(cx, model.NewSectionType(dp.Into), opts...)
}

// needsMemory reports whether rendering the document reads the store.
func (d *Document) needsMemory(c config.Config) bool {
	if len(d.Scratchpad) > 0 {
		return true
	}
	for _, defs := range [][]phase.Definition{c.Phases, d.Phases} {
		for _, p := range defs {
			if len(p.MemoryIncludes) > 0 || p.MemoryQuery != nil {
				return true
			}
		}
	}
	return false
}
