// Package prompt loads versioned prompt templates and renders them with
// validated variables. A prompt file looks like:
//
//	version: "1.2"
//	type: structured
//	variables:
//	  product: string
//	  tone: {type: enum, values: [formal, casual], default: formal}
//	metadata:
//	  tags: [support]
//	prompt:
//	  system_role: You support {{.product}} customers.
//	  behavior: Keep a {{.tone}} tone.
//	  user: "{{.question}}"
//
// Templates use text/template syntax and fail on missing variables.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/model"
)

// Kind selects how a prompt's content is interpreted.
type Kind string

const (
	// Structured content renders to chat messages.
	Structured Kind = "structured"
	// Freeform content renders to one string.
	Freeform Kind = "freeform"
	// Hybrid content renders to a nested map of rendered values.
	Hybrid Kind = "hybrid"
)

// ParseKind accepts the Kind names. Empty means Structured.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return Structured, nil
	case Structured, Freeform, Hybrid:
		return k, nil
	}
	return "", fmt.Errorf("unknown prompt type %q", s)
}

// Metadata is descriptive information carried by a prompt file.
type Metadata struct {
	CreatedBy        string   `yaml:"created_by" json:"created_by,omitempty"`
	CreatedAt        string   `yaml:"created_at" json:"created_at,omitempty"`
	UpdatedAt        string   `yaml:"updated_at" json:"updated_at,omitempty"`
	Tags             []string `yaml:"tags" json:"tags,omitempty"`
	PerformanceScore *float64 `yaml:"performance_score" json:"performance_score,omitempty"`
	Description      string   `yaml:"description" json:"description,omitempty"`
}

// DefaultMaxDepth bounds nesting in hybrid prompts.
const DefaultMaxDepth = 50

// Prompt is a parsed prompt template.
type Prompt struct {
	Name      string
	Version   string
	Kind      Kind
	Meta      Metadata
	Variables []Variable

	structured *structuredContent
	freeform   *freeformContent
	hybrid     *hybridContent
	maxDepth   int

	mu    sync.Mutex
	cache map[string]*template.Template
}

type file struct {
	Version   string    `yaml:"version"`
	Type      string    `yaml:"type"`
	Variables yaml.Node `yaml:"variables"`
	Metadata  Metadata  `yaml:"metadata"`
	Prompt    yaml.Node `yaml:"prompt"`
}

// Parse decodes a prompt file. The document may also nest everything under
// a single top-level key equal to name.
func Parse(name string, data []byte) (*Prompt, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("prompt %q: parse: %w", name, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("prompt %q: empty document", name)
	}
	doc := root.Content[0]
	if doc.Kind == yaml.MappingNode && len(doc.Content) == 2 && doc.Content[0].Value == name &&
		doc.Content[1].Kind == yaml.MappingNode {
		doc = doc.Content[1]
	}

	var f file
	if err := doc.Decode(&f); err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}
	kind, err := ParseKind(f.Type)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}
	vars, err := parseVariables(&f.Variables)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}

	p := &Prompt{
		Name:      name,
		Version:   f.Version,
		Kind:      kind,
		Meta:      f.Metadata,
		Variables: vars,
		maxDepth:  DefaultMaxDepth,
		cache:     make(map[string]*template.Template),
	}
	switch kind {
	case Structured:
		p.structured, err = parseStructured(&f.Prompt)
	case Freeform:
		p.freeform, err = parseFreeform(&f.Prompt)
	case Hybrid:
		p.hybrid, err = parseHybrid(&f.Prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}
	return p, nil
}

// SetMaxDepth changes the hybrid nesting limit.
func (p *Prompt) SetMaxDepth(n int) { p.maxDepth = n }

// Sections lists the renderable sections in document order.
func (p *Prompt) Sections() []string {
	switch p.Kind {
	case Freeform:
		return append([]string(nil), p.freeform.keys...)
	case Hybrid:
		return append([]string(nil), p.hybrid.keys...)
	}
	return p.structured.sections()
}

// SectionError reports sections a prompt does not have.
type SectionError struct {
	Prompt    string
	Unknown   []string
	Available []string
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("prompt %q: unknown sections [%s] (available: [%s])",
		e.Prompt, strings.Join(e.Unknown, ", "), strings.Join(e.Available, ", "))
}

// TemplateError wraps a template parse or execution failure.
type TemplateError struct {
	Prompt  string
	Section string
	Err     error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt %q: section %q: %v", e.Prompt, e.Section, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Rendered is the output of Render. Which fields are set depends on Kind.
type Rendered struct {
	Kind     Kind            `json:"kind"`
	Messages []model.Message `json:"messages,omitempty"`
	Text     string          `json:"text,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
	// Keys orders Data's top-level entries.
	Keys []string `json:"keys,omitempty"`
}

// Render validates vars against the prompt's declarations and executes the
// templates. When sections are given only those are rendered.
func (p *Prompt) Render(vars map[string]any, sections ...string) (Rendered, error) {
	if err := p.checkSections(sections); err != nil {
		return Rendered{}, err
	}
	data, err := Validate(p.Variables, vars)
	if err != nil {
		return Rendered{}, err
	}
	out := Rendered{Kind: p.Kind}
	switch p.Kind {
	case Structured:
		out.Messages, err = p.renderStructured(data, sections)
	case Freeform:
		out.Text, err = p.renderFreeform(data, sections)
	case Hybrid:
		out.Data, out.Keys, err = p.renderHybrid(data, sections)
	}
	if err != nil {
		return Rendered{}, err
	}
	return out, nil
}

func (p *Prompt) checkSections(sections []string) error {
	if len(sections) == 0 {
		return nil
	}
	avail := p.Sections()
	known := make(map[string]bool, len(avail))
	for _, s := range avail {
		known[s] = true
	}
	var unknown []string
	for _, s := range sections {
		if !known[s] {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		return &SectionError{Prompt: p.Name, Unknown: unknown, Available: avail}
	}
	return nil
}

// execute renders one template string, parsing it at most once.
func (p *Prompt) execute(section, text string, data map[string]any) (string, error) {
	p.mu.Lock()
	t, ok := p.cache[text]
	if !ok {
		var err error
		t, err = template.New(section).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			p.mu.Unlock()
			return "", &TemplateError{Prompt: p.Name, Section: section, Err: err}
		}
		p.cache[text] = t
	}
	p.mu.Unlock()

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", &TemplateError{Prompt: p.Name, Section: section, Err: err}
	}
	return b.String(), nil
}

var errNotMapping = errors.New("prompt content must be a mapping")
