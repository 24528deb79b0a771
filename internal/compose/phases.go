package compose

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/phase"
)

// RegisterPhase stores a copy of p. Registering an existing name replaces
// the template but keeps its registration position.
func (cx *Context) RegisterPhase(p *phase.Phase) error {
	if p == nil {
		return errors.New("compose: nil phase")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.New("compose: phase name is required")
	}
	c := p.Clone()
	c.Name = name
	if _, ok := cx.phases[name]; !ok {
		cx.phaseOrder = append(cx.phaseOrder, name)
	}
	cx.phases[name] = c
	return nil
}

// Phase returns a copy of the named template.
func (cx *Context) Phase(name string) (*phase.Phase, bool) {
	p, ok := cx.phases[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Phases lists registered names in registration order.
func (cx *Context) Phases() []string {
	return append([]string(nil), cx.phaseOrder...)
}

// CurrentPhase is the bound State's phase, or "" without a State.
func (cx *Context) CurrentPhase() string {
	if cx.state == nil {
		return ""
	}
	return cx.state.Phase()
}

// AdvancePhase moves the bound State to target. The State's declared phase
// set is checked first, then the current template's transitions. On any
// error the State is unchanged.
func (cx *Context) AdvancePhase(target string) error {
	if cx.state == nil {
		return &model.ConfigError{Reason: "no state bound", Detail: "advance requires a State"}
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return &model.ConfigError{Reason: "empty target phase"}
	}
	if err := cx.state.Accepts(target); err != nil {
		return err
	}
	from := cx.state.Phase()
	if from != "" {
		cur, ok := cx.phases[from]
		if !ok {
			return &model.ConfigError{Reason: "current phase is not registered", Detail: from}
		}
		if err := phase.Allows(cur, target, cx.phaseOrder, cx.policy); err != nil {
			return err
		}
	}
	if err := cx.state.SetPhase(target); err != nil {
		return err
	}
	cx.logger.Debug("phase advanced", zap.String("from", from), zap.String("to", target))
	return nil
}

// TransitionPolicy reports how an empty transitions_to is treated.
func (cx *Context) TransitionPolicy() phase.Policy { return cx.policy }
