package prompt

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/model"
)

// Well-known structured section names.
const (
	SectionSystemRole   = "system_role"
	SectionBehavior     = "behavior"
	SectionRestrictions = "restrictions"
	SectionFormat       = "format"
	SectionFewShots     = "few_shots"
	SectionUser         = "user"
	SectionAssistant    = "assistant"
)

// Turns is one side of a few-shot example: a plain string or a list of
// role/content turns.
type Turns []model.Message

func (t *Turns) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*t = Turns{{Content: n.Value}}
		return nil
	}
	var msgs []model.Message
	if err := n.Decode(&msgs); err != nil {
		return err
	}
	*t = msgs
	return nil
}

// Example is a few-shot example.
type Example struct {
	Input     Turns          `yaml:"input"`
	Output    Turns          `yaml:"output"`
	Reasoning string         `yaml:"reasoning"`
	Context   string         `yaml:"context"`
	Metadata  map[string]any `yaml:"metadata"`
}

type customSection struct {
	name string
	text string
}

type structuredContent struct {
	systemRole   string
	behavior     string
	restrictions string
	format       string
	user         string
	assistant    string
	fewShots     []Example
	custom       []customSection
}

func parseStructured(n *yaml.Node) (*structuredContent, error) {
	c := &structuredContent{}
	if n.Kind == 0 {
		return c, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errNotMapping
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		var dst *string
		switch key {
		case "role", "system", SectionSystemRole:
			dst = &c.systemRole
		case SectionBehavior:
			dst = &c.behavior
		case SectionRestrictions:
			dst = &c.restrictions
		case SectionFormat:
			dst = &c.format
		case SectionUser, "human":
			dst = &c.user
		case SectionAssistant, "ai":
			dst = &c.assistant
		case SectionFewShots:
			if err := val.Decode(&c.fewShots); err != nil {
				return nil, fmt.Errorf("few_shots: %w", err)
			}
			continue
		default:
			text, err := scalarText(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			c.custom = append(c.custom, customSection{name: key, text: text})
			continue
		}
		if *dst != "" {
			continue
		}
		text, err := scalarText(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = text
	}
	return c, nil
}

func (c *structuredContent) sections() []string {
	var out []string
	add := func(name, text string) {
		if text != "" {
			out = append(out, name)
		}
	}
	add(SectionSystemRole, c.systemRole)
	add(SectionBehavior, c.behavior)
	add(SectionRestrictions, c.restrictions)
	add(SectionFormat, c.format)
	if len(c.fewShots) > 0 {
		out = append(out, SectionFewShots)
	}
	add(SectionUser, c.user)
	add(SectionAssistant, c.assistant)
	for _, s := range c.custom {
		out = append(out, s.name)
	}
	return out
}

// renderStructured emits one system message from the role, behavior,
// restrictions and format sections, then few-shot turns, the user and
// assistant messages, and one system message per custom section.
func (p *Prompt) renderStructured(data map[string]any, sections []string) ([]model.Message, error) {
	c := p.structured
	want := selector(sections)
	var msgs []model.Message

	var system []string
	for _, part := range []struct{ name, text, label string }{
		{SectionSystemRole, c.systemRole, ""},
		{SectionBehavior, c.behavior, ""},
		{SectionRestrictions, c.restrictions, "RESTRICTIONS:\n"},
		{SectionFormat, c.format, "FORMAT:\n"},
	} {
		if part.text == "" || !want(part.name) {
			continue
		}
		out, err := p.execute(part.name, part.text, data)
		if err != nil {
			return nil, err
		}
		system = append(system, part.label+out)
	}
	if len(system) > 0 {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: strings.Join(system, "\n\n")})
	}

	if want(SectionFewShots) {
		for _, ex := range c.fewShots {
			for _, side := range []struct {
				turns Turns
				role  string
			}{{ex.Input, model.RoleUser}, {ex.Output, model.RoleAssistant}} {
				for _, turn := range side.turns {
					role := turn.Role
					if role == "" {
						role = side.role
					}
					out, err := p.execute(SectionFewShots, turn.Content, data)
					if err != nil {
						return nil, err
					}
					msgs = append(msgs, model.Message{Role: role, Content: out})
				}
			}
		}
	}

	for _, part := range []struct{ name, text, role string }{
		{SectionUser, c.user, model.RoleUser},
		{SectionAssistant, c.assistant, model.RoleAssistant},
	} {
		if part.text == "" || !want(part.name) {
			continue
		}
		out, err := p.execute(part.name, part.text, data)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, model.Message{Role: part.role, Content: out})
	}

	for _, s := range c.custom {
		if !want(s.name) {
			continue
		}
		out, err := p.execute(s.name, s.text, data)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: strings.ToUpper(s.name) + ":\n" + out})
	}
	return msgs, nil
}

type freeformContent struct {
	keys  []string
	texts map[string]string
}

// parseFreeform accepts a mapping of named sections or a single template
// string, stored as the "template" section.
func parseFreeform(n *yaml.Node) (*freeformContent, error) {
	c := &freeformContent{texts: map[string]string{}}
	switch n.Kind {
	case 0:
		return c, nil
	case yaml.ScalarNode:
		c.keys = []string{"template"}
		c.texts["template"] = n.Value
		return c, nil
	case yaml.MappingNode:
	default:
		return nil, errNotMapping
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		text, err := scalarText(n.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := c.texts[key]; !dup {
			c.keys = append(c.keys, key)
		}
		c.texts[key] = text
	}
	return c, nil
}

// renderFreeform joins the rendered sections with blank lines, in document
// order or in the order requested.
func (p *Prompt) renderFreeform(data map[string]any, sections []string) (string, error) {
	c := p.freeform
	keys := c.keys
	if len(sections) > 0 {
		keys = sections
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		out, err := p.execute(k, c.texts[k], data)
		if err != nil {
			return "", err
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n"), nil
}

type hybridContent struct {
	keys   []string
	values map[string]any
}

func parseHybrid(n *yaml.Node) (*hybridContent, error) {
	c := &hybridContent{values: map[string]any{}}
	if n.Kind == 0 {
		return c, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errNotMapping
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := c.values[key]; !dup {
			c.keys = append(c.keys, key)
		}
		c.values[key] = v
	}
	return c, nil
}

// renderHybrid renders every string inside the selected top-level values.
func (p *Prompt) renderHybrid(data map[string]any, sections []string) (map[string]any, []string, error) {
	c := p.hybrid
	want := selector(sections)
	out := make(map[string]any, len(c.keys))
	var keys []string
	for _, k := range c.keys {
		if !want(k) {
			continue
		}
		v, err := p.renderValue(k, c.values[k], data, 0)
		if err != nil {
			return nil, nil, err
		}
		out[k] = v
		keys = append(keys, k)
	}
	return out, keys, nil
}

func (p *Prompt) renderValue(section string, v any, data map[string]any, depth int) (any, error) {
	if depth > p.maxDepth {
		return nil, fmt.Errorf("prompt %q: section %q nests deeper than %d levels", p.Name, section, p.maxDepth)
	}
	switch v := v.(type) {
	case string:
		return p.execute(section, v, data)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := p.renderValue(section, item, data, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := p.renderValue(section, item, data, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}

func selector(sections []string) func(string) bool {
	if len(sections) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(sections))
	for _, s := range sections {
		set[s] = true
	}
	return func(name string) bool { return set[name] }
}

// scalarText returns a scalar's text. Non-scalars are re-encoded as YAML.
func scalarText(n *yaml.Node) (string, error) {
	if n.Kind == yaml.ScalarNode {
		return n.Value, nil
	}
	b, err := yaml.Marshal(n)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}
