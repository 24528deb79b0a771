package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/agent-context/internal/compose"
	"github.com/rcliao/agent-context/internal/model"
)

// AddTo appends r to cx. Structured system messages go to the system
// section and other roles to messages. Freeform text goes to freeformType,
// or instructions when it is zero. Each hybrid key becomes a section of
// that name; non-string values are JSON encoded.
func (r Rendered) AddTo(cx *compose.Context, freeformType model.SectionType, opts ...compose.EntryOption) error {
	switch r.Kind {
	case Structured:
		for _, m := range r.Messages {
			if m.Role == model.RoleSystem {
				cx.Add(model.System, m.Content, opts...)
				continue
			}
			cx.AddMessage(m.Role, m.Content)
		}
	case Freeform:
		if freeformType.IsZero() {
			freeformType = model.Instructions
		}
		cx.Add(freeformType, r.Text, opts...)
	case Hybrid:
		for _, k := range r.Keys {
			t := model.NewSectionType(k)
			if t.IsZero() {
				return fmt.Errorf("prompt section with empty name")
			}
			text, err := hybridText(r.Data[k])
			if err != nil {
				return fmt.Errorf("prompt section %q: %w", k, err)
			}
			cx.Add(t, text, opts...)
		}
	default:
		return fmt.Errorf("unknown prompt kind %q", r.Kind)
	}
	return nil
}

func hybridText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
