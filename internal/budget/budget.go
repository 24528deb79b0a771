// Package budget trims resolved section entries to fit a token limit.
package budget

import (
	"sort"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/tokens"
)

// Spec configures enforcement.
type Spec struct {
	// MaxTokens is the global ceiling. Zero disables global trimming.
	MaxTokens int `yaml:"max_tokens"`
	// Priority ranks section types from highest to lowest. Types not
	// listed rank below every listed type.
	Priority []model.SectionType `yaml:"-"`
	// Required types are never evicted.
	Required []model.SectionType `yaml:"-"`
	// SectionLimits caps individual types before the global pass.
	SectionLimits map[model.SectionType]int `yaml:"-"`
	// Strict turns an over-budget result into a *model.BudgetExceededError.
	Strict bool `yaml:"strict"`
}

// IsZero reports whether s imposes no limits at all.
func (s Spec) IsZero() bool {
	return s.MaxTokens <= 0 && len(s.SectionLimits) == 0
}

// Clone returns a copy of s that shares no slices or maps with it.
func (s Spec) Clone() Spec {
	out := s
	out.Priority = append([]model.SectionType(nil), s.Priority...)
	out.Required = append([]model.SectionType(nil), s.Required...)
	if s.SectionLimits != nil {
		out.SectionLimits = make(map[model.SectionType]int, len(s.SectionLimits))
		for t, n := range s.SectionLimits {
			out.SectionLimits[t] = n
		}
	}
	return out
}

// Validate checks that every referenced type is known.
func (s Spec) Validate(known func(model.SectionType) bool) error {
	for _, t := range s.Priority {
		if !known(t) {
			return &model.ConfigError{Reason: "budget priority references unknown section type", Detail: t.Name()}
		}
	}
	for t := range s.SectionLimits {
		if !known(t) {
			return &model.ConfigError{Reason: "budget section limit references unknown section type", Detail: t.Name()}
		}
	}
	return nil
}

// Entry is one resolved section entry.
type Entry struct {
	Type     model.SectionType
	Seq      int64
	Text     string
	Required bool
	// Tokens is filled in by Enforce.
	Tokens int
	// Payload carries caller data through enforcement untouched.
	Payload any
}

// Result is the outcome of Enforce. Kept preserves input order.
type Result struct {
	Kept       []Entry
	Evicted    []Entry
	Total      int
	OverBudget bool
}

// EvictedByType counts evicted entries per section type.
func (r Result) EvictedByType() map[model.SectionType]int {
	out := map[model.SectionType]int{}
	for _, e := range r.Evicted {
		out[e.Type]++
	}
	return out
}

// Manager applies a Spec.
type Manager struct {
	spec     Spec
	rank     map[model.SectionType]int
	required map[model.SectionType]bool
}

func NewManager(spec Spec) *Manager {
	m := &Manager{
		spec:     spec,
		rank:     make(map[model.SectionType]int, len(spec.Priority)),
		required: make(map[model.SectionType]bool, len(spec.Required)),
	}
	for i, t := range spec.Priority {
		if _, dup := m.rank[t]; !dup {
			m.rank[t] = i
		}
	}
	for _, t := range spec.Required {
		m.required[t] = true
	}
	return m
}

func (m *Manager) Spec() Spec { return m.spec }

func (m *Manager) isRequired(e Entry) bool {
	return e.Required || m.required[e.Type]
}

// Enforce counts every entry and evicts until limits hold.
//
// Per-type SectionLimits are applied first, oldest entry first. The global
// pass then evicts from the lowest-ranked type upward; unlisted types go
// first, in order of first appearance. Within a type, the oldest entry
// goes first. Eviction stops as soon as the total fits. Required entries
// are never evicted; if they alone exceed MaxTokens the result is flagged
// OverBudget, and a Strict spec also returns *model.BudgetExceededError.
func (m *Manager) Enforce(entries []Entry, counter tokens.Counter) (Result, error) {
	work := make([]Entry, len(entries))
	copy(work, entries)
	alive := make([]bool, len(work))
	total := 0
	for i := range work {
		work[i].Tokens = counter.Count(work[i].Text)
		alive[i] = true
		total += work[i].Tokens
	}

	evict := func(i int) {
		alive[i] = false
		total -= work[i].Tokens
	}

	// Group indexes by type in first-appearance order.
	var order []model.SectionType
	byType := map[model.SectionType][]int{}
	for i, e := range work {
		if _, ok := byType[e.Type]; !ok {
			order = append(order, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], i)
	}

	for _, t := range order {
		limit, ok := m.spec.SectionLimits[t]
		if !ok {
			continue
		}
		used := 0
		for _, i := range byType[t] {
			used += work[i].Tokens
		}
		for _, i := range byType[t] {
			if used <= limit {
				break
			}
			if m.isRequired(work[i]) {
				continue
			}
			used -= work[i].Tokens
			evict(i)
		}
	}

	if limit := m.spec.MaxTokens; limit > 0 && total > limit {
	global:
		for _, t := range m.evictionOrder(order) {
			for _, i := range byType[t] {
				if total <= limit {
					break global
				}
				if alive[i] && !m.isRequired(work[i]) {
					evict(i)
				}
			}
		}
	}

	res := Result{Total: total}
	for i, e := range work {
		if alive[i] {
			res.Kept = append(res.Kept, e)
		} else {
			res.Evicted = append(res.Evicted, e)
		}
	}
	if m.spec.MaxTokens > 0 && total > m.spec.MaxTokens {
		res.OverBudget = true
		if m.spec.Strict {
			return res, &model.BudgetExceededError{Limit: m.spec.MaxTokens, Total: total}
		}
	}
	return res, nil
}

// evictionOrder lists types lowest priority first.
func (m *Manager) evictionOrder(seen []model.SectionType) []model.SectionType {
	var unlisted, listed []model.SectionType
	for _, t := range seen {
		if _, ok := m.rank[t]; ok {
			listed = append(listed, t)
		} else {
			unlisted = append(unlisted, t)
		}
	}
	sort.SliceStable(listed, func(i, j int) bool { return m.rank[listed[i]] > m.rank[listed[j]] })
	return append(unlisted, listed...)
}
