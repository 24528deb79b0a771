package compose

import (
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
)

// Fork returns a Context holding copies of the listed section types, or
// every section when none are listed. Phases, budget, output schema and
// generation config are copied. State and Memory are not; bind them on
// the fork if needed.
func (cx *Context) Fork(types ...model.SectionType) *Context {
	out := &Context{
		sections:     make(map[model.SectionType][]entry),
		phases:       make(map[string]*phase.Phase, len(cx.phases)),
		phaseOrder:   append([]string(nil), cx.phaseOrder...),
		policy:       cx.policy,
		budget:       cx.budget.Clone(),
		counter:      cx.counter,
		genConfig:    copyConfig(cx.genConfig),
		outputSchema: cx.outputSchema,
		seq:          cx.seq,
		logger:       cx.logger,
		metrics:      cx.metrics,
	}
	want := map[model.SectionType]bool{}
	for _, t := range types {
		want[t] = true
	}
	for _, t := range cx.order {
		if len(types) > 0 && !want[t] {
			continue
		}
		out.order = append(out.order, t)
		out.sections[t] = append([]entry(nil), cx.sections[t]...)
	}
	for name, p := range cx.phases {
		out.phases[name] = p.Clone()
	}
	return out
}
