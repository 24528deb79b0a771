package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/render"
)

// RenderOption adjusts a single render.
type RenderOption func(*renderParams)

type renderParams struct {
	phase     string
	genConfig map[string]any
	maxTokens int
	memory    *memory.Memory
}

// WithPhase renders the named phase instead of the State's current one.
func WithPhase(name string) RenderOption {
	return func(p *renderParams) { p.phase = name }
}

// WithGenerationConfig is shallow-merged over the context default.
func WithGenerationConfig(cfg map[string]any) RenderOption {
	return func(p *renderParams) { p.genConfig = cfg }
}

// WithMaxTokens overrides the budget's global limit.
func WithMaxTokens(n int) RenderOption {
	return func(p *renderParams) { p.maxTokens = n }
}

// WithMemory resolves memory includes against m instead of the bound store.
func WithMemory(m *memory.Memory) RenderOption {
	return func(p *renderParams) { p.memory = m }
}

// Result is a rendered payload plus budget bookkeeping.
type Result struct {
	Payload    render.Payload
	Phase      string
	Tokens     int
	OverBudget bool
	Evicted    map[model.SectionType]int
	// Sections is what survived the budget, resolved.
	Sections []render.Section
}

type viewItem struct {
	seq      int64
	text     string
	role     string
	required bool
}

type viewSection struct {
	typ   model.SectionType
	items []viewItem
}

// view accumulates sections in first-seen order.
type view struct {
	sections []viewSection
	index    map[model.SectionType]int
}

func (v *view) add(t model.SectionType, items ...viewItem) {
	if len(items) == 0 {
		return
	}
	if v.index == nil {
		v.index = map[model.SectionType]int{}
	}
	i, ok := v.index[t]
	if !ok {
		i = len(v.sections)
		v.index[t] = i
		v.sections = append(v.sections, viewSection{typ: t})
	}
	v.sections[i].items = append(v.sections[i].items, items...)
}

func (v *view) has(t model.SectionType) bool {
	i, ok := v.index[t]
	return ok && len(v.sections[i].items) > 0
}

func (e entry) item() viewItem {
	return viewItem{seq: e.seq, text: e.resolve(), role: e.role, required: e.required}
}

// resolvePhase picks the explicit name, then the State's phase. An empty
// result means no phase filtering.
func (cx *Context) resolvePhase(name string) (*phase.Phase, error) {
	if name == "" {
		name = cx.CurrentPhase()
	}
	if name == "" {
		return nil, nil
	}
	p, ok := cx.phases[name]
	if !ok {
		return nil, &model.ConfigError{Reason: "phase is not registered", Detail: name}
	}
	return p, nil
}

// build resolves lazy content and applies the phase filter. Synthetic
// entries (phase prompts, memories, tools) get sequence numbers after
// every stored entry so they sort as newest.
func (cx *Context) build(ctx context.Context, p *phase.Phase, mem *memory.Memory) (*view, error) {
	v := &view{}
	seq := cx.seq
	synthetic := func(text string) viewItem {
		seq++
		return viewItem{seq: seq, text: text}
	}

	if p == nil {
		for _, t := range cx.order {
			for _, e := range cx.sections[t] {
				v.add(t, e.item())
			}
		}
	} else {
		if p.System != "" {
			v.add(model.System, synthetic(p.System))
		}
		if instr := p.ResolveInstructions(); instr != "" {
			v.add(model.Instructions, synthetic(instr))
		}
		for _, t := range cx.order {
			if !p.IncludesType(t) {
				continue
			}
			es := cx.sections[t]
			if t == model.Messages && p.MaxHistory > 0 && len(es) > p.MaxHistory {
				es = es[len(es)-p.MaxHistory:]
			}
			for _, e := range es {
				v.add(t, e.item())
			}
		}

		if len(p.MemoryIncludes) > 0 || p.MemoryQuery != nil {
			if mem == nil {
				return nil, &model.ConfigError{Reason: "phase reads memory but none is bound", Detail: p.Name}
			}
		}
		for _, key := range p.MemoryIncludes {
			text, ok, err := lookupMemory(ctx, mem, key)
			if err != nil {
				return nil, err
			}
			if ok {
				v.add(model.NewSectionType(key), synthetic(text))
			}
		}
		if q := p.MemoryQuery; q != nil {
			hits, err := mem.Retrieve(ctx, memory.RetrieveParams{Query: q.Query, Filters: q.Filters, TopK: q.TopK})
			if err != nil {
				return nil, fmt.Errorf("compose: memory query for phase %q: %w", p.Name, err)
			}
			for _, h := range hits {
				v.add(model.MemoryHits, synthetic(h.Memory.Value))
			}
		}
		for _, tool := range p.Tools {
			v.add(model.Tools, synthetic(tool))
		}
	}

	if cx.outputSchema != "" {
		it := synthetic(cx.outputSchema)
		it.required = true
		v.add(model.OutputSchema, it)
	}
	return v, nil
}

// lookupMemory reads key from the scratchpad, then the store.
func lookupMemory(ctx context.Context, mem *memory.Memory, key string) (string, bool, error) {
	if val, ok := mem.Scratchpad().Read(key); ok {
		return formatValue(val), true, nil
	}
	rec, err := mem.Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("compose: memory include %q: %w", key, err)
	}
	return rec.Value, true, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// knownTypes accepts the well-known types, types with entries and the
// sections p can produce from its includes and memory keys.
func (cx *Context) knownTypes(p *phase.Phase) func(model.SectionType) bool {
	return func(t model.SectionType) bool {
		if model.IsWellKnown(t) {
			return true
		}
		if _, ok := cx.sections[t]; ok {
			return true
		}
		if p == nil {
			return false
		}
		for _, inc := range p.Includes {
			if inc == t {
				return true
			}
		}
		for _, key := range p.MemoryIncludes {
			if model.NewSectionType(key) == t {
				return true
			}
		}
		return false
	}
}

// Render resolves the active phase, applies the budget and converts the
// result to format. A strict budget that cannot be met returns a
// *model.BudgetExceededError and no result.
func (cx *Context) Render(ctx context.Context, format render.Format, opts ...RenderOption) (*Result, error) {
	var rp renderParams
	for _, opt := range opts {
		opt(&rp)
	}
	mem := rp.memory
	if mem == nil {
		mem = cx.memory
	}

	p, err := cx.resolvePhase(rp.phase)
	if err != nil {
		return nil, err
	}
	spec := cx.budget.Clone()
	if rp.maxTokens > 0 {
		spec.MaxTokens = rp.maxTokens
	}
	if err := spec.Validate(cx.knownTypes(p)); err != nil {
		return nil, err
	}

	v, err := cx.build(ctx, p, mem)
	if err != nil {
		return nil, err
	}
	for _, t := range spec.Required {
		if !v.has(t) {
			return nil, &model.ConfigError{Reason: "required section type is missing", Detail: t.Name()}
		}
	}

	var entries []budget.Entry
	for _, s := range v.sections {
		for _, it := range s.items {
			entries = append(entries, budget.Entry{
				Type:     s.typ,
				Seq:      it.seq,
				Text:     it.text,
				Required: it.required,
				Payload:  render.Item{Text: it.text, Role: it.role},
			})
		}
	}
	res, err := budget.NewManager(spec).Enforce(entries, cx.counter)
	if err != nil {
		cx.metrics.ObserveRender(string(format), phaseName(p), res.Total, true)
		cx.logger.Warn("strict budget exceeded",
			zap.String("format", string(format)),
			zap.Int("limit", spec.MaxTokens),
			zap.Int("tokens", res.Total))
		return nil, err
	}

	sections := regroup(res.Kept)
	payload, err := render.Render(format, sections, render.Config{
		GenerationConfig: cx.genConfig,
		Override:         rp.genConfig,
	})
	if err != nil {
		return nil, err
	}

	out := &Result{
		Payload:    payload,
		Phase:      phaseName(p),
		Tokens:     res.Total,
		OverBudget: res.OverBudget,
		Evicted:    res.EvictedByType(),
		Sections:   sections,
	}
	cx.metrics.ObserveRender(string(format), out.Phase, out.Tokens, out.OverBudget)
	for t, n := range out.Evicted {
		cx.metrics.Evicted(t.Name(), n)
	}
	if out.OverBudget {
		cx.logger.Warn("required content exceeds budget",
			zap.Int("limit", spec.MaxTokens),
			zap.Int("tokens", out.Tokens))
	}
	cx.logger.Debug("rendered context",
		zap.String("format", string(format)),
		zap.String("phase", out.Phase),
		zap.Int("tokens", out.Tokens),
		zap.Int("evicted", len(res.Evicted)))
	return out, nil
}

func regroup(kept []budget.Entry) []render.Section {
	var out []render.Section
	index := map[model.SectionType]int{}
	for _, e := range kept {
		i, ok := index[e.Type]
		if !ok {
			i = len(out)
			index[e.Type] = i
			out = append(out, render.Section{Type: e.Type})
		}
		out[i].Items = append(out[i].Items, e.Payload.(render.Item))
	}
	return out
}

func phaseName(p *phase.Phase) string {
	if p == nil {
		return ""
	}
	return p.Name
}

// TokenCount sums token counts over the phase view without trimming. An
// empty name uses the State's phase.
func (cx *Context) TokenCount(ctx context.Context, name string) (int, error) {
	p, err := cx.resolvePhase(name)
	if err != nil {
		return 0, err
	}
	v, err := cx.build(ctx, p, cx.memory)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range v.sections {
		for _, it := range s.items {
			total += cx.counter.Count(it.text)
		}
	}
	return total, nil
}
