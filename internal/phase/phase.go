// Package phase defines workflow phase templates and the rules for moving
// between them.
package phase

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/model"
)

// Policy decides what an empty TransitionsTo means.
type Policy int

const (
	// Unrestricted lets a phase without TransitionsTo reach any
	// registered phase.
	Unrestricted Policy = iota
	// Terminal forbids leaving a phase without TransitionsTo.
	Terminal
)

func (p Policy) String() string {
	if p == Terminal {
		return "terminal"
	}
	return "unrestricted"
}

// ParsePolicy accepts "unrestricted" (or "") and "terminal".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unrestricted":
		return Unrestricted, nil
	case "terminal":
		return Terminal, nil
	}
	return Unrestricted, fmt.Errorf("unknown transition policy %q", s)
}

// MemoryQuery asks for retrieved memories to be rendered in the phase.
type MemoryQuery struct {
	Query   string         `yaml:"query"`
	Filters map[string]any `yaml:"filters"`
	TopK    int            `yaml:"top_k"`
}

// Phase is a named workflow stage. It scopes which sections and memories
// are visible and which phases may follow.
type Phase struct {
	Name         string
	System       string
	Instructions string
	// InstructionsFunc, when set, is called on every render instead of
	// using Instructions.
	InstructionsFunc func() string
	Includes         []model.SectionType
	// MemoryIncludes are keys looked up in the scratchpad first, then in
	// the store.
	MemoryIncludes []string
	MemoryQuery    *MemoryQuery
	Tools          []string
	// MaxHistory keeps only the newest messages. Zero keeps all.
	MaxHistory    int
	TransitionsTo []string
}

// ResolveInstructions returns the current instruction text.
func (p *Phase) ResolveInstructions() string {
	if p.InstructionsFunc != nil {
		return p.InstructionsFunc()
	}
	return p.Instructions
}

// IncludesType reports whether t is visible in this phase. A phase with
// no includes shows every section type.
func (p *Phase) IncludesType(t model.SectionType) bool {
	if len(p.Includes) == 0 {
		return true
	}
	for _, inc := range p.Includes {
		if inc == t {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with p.
func (p *Phase) Clone() *Phase {
	out := *p
	out.Includes = append([]model.SectionType(nil), p.Includes...)
	out.MemoryIncludes = append([]string(nil), p.MemoryIncludes...)
	out.Tools = append([]string(nil), p.Tools...)
	out.TransitionsTo = append([]string(nil), p.TransitionsTo...)
	if p.MemoryQuery != nil {
		q := *p.MemoryQuery
		out.MemoryQuery = &q
	}
	return &out
}

// Allows checks whether from may move to target given the registered phase
// names. The target must be registered even when transitions_to lists it. It returns nil or a *model.TransitionError from the phase layer.
func Allows(from *Phase, target string, registered []string, policy Policy) error {
	reject := func(reason string, allowed []string) error {
		return &model.TransitionError{
			Layer:   model.LayerPhase,
			From:    from.Name,
			To:      target,
			Allowed: allowed,
			Reason:  reason,
		}
	}

	isRegistered := func() bool {
		for _, r := range registered {
			if r == target {
				return true
			}
		}
		return false
	}

	if len(from.TransitionsTo) > 0 {
		for _, t := range from.TransitionsTo {
			if t != target {
				continue
			}
			if !isRegistered() {
				return reject("target phase is not registered", nil)
			}
			return nil
		}
		return reject("not in transitions_to", from.TransitionsTo)
	}

	if policy == Terminal {
		return reject("phase is terminal", nil)
	}
	if isRegistered() {
		return nil
	}
	sorted := append([]string(nil), registered...)
	sort.Strings(sorted)
	return reject("target phase is not registered", sorted)
}

// Definition is the YAML form of a Phase.
type Definition struct {
	Name           string       `yaml:"name"`
	System         string       `yaml:"system"`
	Instructions   string       `yaml:"instructions"`
	Includes       []string     `yaml:"includes"`
	MemoryIncludes []string     `yaml:"memory_includes"`
	MemoryQuery    *MemoryQuery `yaml:"memory_query"`
	Tools          []string     `yaml:"tools"`
	MaxHistory     int          `yaml:"max_history"`
	TransitionsTo  []string     `yaml:"transitions_to"`
}

type document struct {
	Phases []Definition `yaml:"phases"`
}

// LoadDefinitions reads phases from YAML of the form:
//
//	phases:
//	  - name: intake
//	    system: You are a support agent.
//	    includes: [messages, tools]
//	    transitions_to: [resolve]
func LoadDefinitions(r io.Reader) ([]*Phase, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse phases: %w", err)
	}
	return FromDefinitions(doc.Phases)
}

// FromDefinitions validates decoded definitions. Names must be unique and
// non-empty.
func FromDefinitions(defs []Definition) ([]*Phase, error) {
	seen := map[string]bool{}
	out := make([]*Phase, 0, len(defs))
	for i, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("phase %d: missing name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("phase %q defined twice", name)
		}
		seen[name] = true

		p := &Phase{
			Name:           name,
			System:         d.System,
			Instructions:   d.Instructions,
			MemoryIncludes: d.MemoryIncludes,
			MemoryQuery:    d.MemoryQuery,
			Tools:          d.Tools,
			MaxHistory:     d.MaxHistory,
			TransitionsTo:  d.TransitionsTo,
		}
		if p.MaxHistory < 0 {
			return nil, fmt.Errorf("phase %q: max_history must not be negative", name)
		}
		for _, inc := range d.Includes {
			p.Includes = append(p.Includes, model.NewSectionType(inc))
		}
		out = append(out, p)
	}
	return out, nil
}
