// Package compose assembles model context: an ordered store of typed
// sections, optional phase templates that scope what is visible, a token
// budget, and rendering into provider payloads.
//
// A Context is not safe for concurrent mutation. Use Fork to hand an
// independent copy to another goroutine.
package compose

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/logging"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
	"github.com/rcliao/agent-context/internal/state"
	"github.com/rcliao/agent-context/internal/tokens"
)

// Producer yields section content at render time. It is called on every
// render; results are never cached.
type Producer func() string

type entry struct {
	seq      int64
	text     string
	producer Producer
	role     string
	required bool
}

func (e entry) resolve() string {
	if e.producer != nil {
		return e.producer()
	}
	return e.text
}

// EntryOption marks an entry at insertion.
type EntryOption func(*entry)

// Required exempts the entry from budget eviction.
func Required() EntryOption {
	return func(e *entry) { e.required = true }
}

// WithRole makes the entry a chat message with the given role.
func WithRole(role string) EntryOption {
	return func(e *entry) { e.role = role }
}

// Entry is a read-only view of a stored entry.
type Entry struct {
	Seq      int64
	Text     string
	Role     string
	Lazy     bool
	Required bool
}

// Context owns the sections. State and Memory are borrowed references.
type Context struct {
	order    []model.SectionType
	sections map[model.SectionType][]entry
	seq      int64

	phases     map[string]*phase.Phase
	phaseOrder []string
	policy     phase.Policy

	budget       budget.Spec
	counter      tokens.Counter
	genConfig    map[string]any
	outputSchema string

	state  *state.State
	memory *memory.Memory

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Context.
type Option func(*Context)

// WithCounter sets the token counter. The default is tokens.Heuristic.
func WithCounter(c tokens.Counter) Option {
	return func(cx *Context) { cx.counter = c }
}

func WithBudget(spec budget.Spec) Option {
	return func(cx *Context) { cx.budget = spec.Clone() }
}

// WithTransitionPolicy decides what an empty transitions_to means.
// The default is phase.Unrestricted.
func WithTransitionPolicy(p phase.Policy) Option {
	return func(cx *Context) { cx.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(cx *Context) { cx.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cx *Context) { cx.metrics = m }
}

// New returns an empty Context.
func New(opts ...Option) *Context {
	cx := &Context{
		sections: make(map[model.SectionType][]entry),
		phases:   make(map[string]*phase.Phase),
		counter:  tokens.NewHeuristic(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cx)
	}
	return cx
}

func (cx *Context) push(t model.SectionType, e entry) {
	if t.IsZero() {
		panic("compose: zero SectionType")
	}
	cx.seq++
	e.seq = cx.seq
	if _, ok := cx.sections[t]; !ok {
		cx.order = append(cx.order, t)
	}
	cx.sections[t] = append(cx.sections[t], e)
}

// Add appends content to section t.
func (cx *Context) Add(t model.SectionType, content string, opts ...EntryOption) {
	e := entry{text: content}
	for _, opt := range opts {
		opt(&e)
	}
	cx.push(t, e)
}

// AddLazy appends an entry whose content is produced at render time.
func (cx *Context) AddLazy(t model.SectionType, fn Producer, opts ...EntryOption) {
	e := entry{producer: fn}
	for _, opt := range opts {
		opt(&e)
	}
	cx.push(t, e)
}

// AddMessage appends a chat message to the messages section.
func (cx *Context) AddMessage(role, content string) {
	cx.Add(model.Messages, content, WithRole(role))
}

// AddUserMessage appends a user message.
func (cx *Context) AddUserMessage(content string) {
	cx.AddMessage(model.RoleUser, content)
}

// AddResponse appends a model reply. An empty role means assistant.
func (cx *Context) AddResponse(text, role string) {
	if role == "" {
		role = model.RoleAssistant
	}
	cx.AddMessage(role, text)
}

// Replace discards t's entries and stores contents in their place. The
// section keeps its position.
func (cx *Context) Replace(t model.SectionType, contents ...string) {
	if _, ok := cx.sections[t]; ok {
		cx.sections[t] = nil
	}
	for _, c := range contents {
		cx.Add(t, c)
	}
}

// Remove deletes section t.
func (cx *Context) Remove(t model.SectionType) {
	if _, ok := cx.sections[t]; !ok {
		return
	}
	delete(cx.sections, t)
	for i, o := range cx.order {
		if o == t {
			cx.order = append(cx.order[:i], cx.order[i+1:]...)
			break
		}
	}
}

// Clear deletes every section. Phases, budget and bindings are kept.
func (cx *Context) Clear() {
	cx.sections = make(map[model.SectionType][]entry)
	cx.order = nil
}

// Types returns section types in first-insertion order.
func (cx *Context) Types() []model.SectionType {
	return append([]model.SectionType(nil), cx.order...)
}

// Section returns a view of t's entries. Lazy entries have empty Text.
func (cx *Context) Section(t model.SectionType) []Entry {
	es := cx.sections[t]
	if es == nil {
		return nil
	}
	out := make([]Entry, len(es))
	for i, e := range es {
		out[i] = Entry{Seq: e.seq, Text: e.text, Role: e.role, Lazy: e.producer != nil, Required: e.required}
	}
	return out
}

// GetMessages returns chat-shaped entries of the messages section,
// optionally only those with role. Lazy messages are resolved.
func (cx *Context) GetMessages(role string) []model.Message {
	var out []model.Message
	for _, e := range cx.sections[model.Messages] {
		if e.role == "" || (role != "" && e.role != role) {
			continue
		}
		out = append(out, model.Message{Role: e.role, Content: e.resolve()})
	}
	return out
}

// SetBudget replaces the budget spec.
func (cx *Context) SetBudget(spec budget.Spec) { cx.budget = spec.Clone() }

func (cx *Context) Budget() budget.Spec { return cx.budget.Clone() }

// SetGenerationConfig sets the default generation config for envelope
// formats. The map is copied.
func (cx *Context) SetGenerationConfig(cfg map[string]any) {
	cx.genConfig = copyConfig(cfg)
}

// SetOutputSchema renders schema into an output_schema section on every
// render. Strings are used verbatim; other values are encoded as JSON.
// A nil schema removes it.
func (cx *Context) SetOutputSchema(schema any) error {
	switch s := schema.(type) {
	case nil:
		cx.outputSchema = ""
	case string:
		cx.outputSchema = s
	default:
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("compose: encode output schema: %w", err)
		}
		cx.outputSchema = string(b)
	}
	return nil
}

// BindState attaches the session state used for the current phase.
func (cx *Context) BindState(s *state.State) { cx.state = s }

func (cx *Context) State() *state.State { return cx.state }

// BindMemory attaches the store used for memory includes and queries.
func (cx *Context) BindMemory(m *memory.Memory) { cx.memory = m }

func (cx *Context) Memory() *memory.Memory { return cx.memory }

func copyConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
