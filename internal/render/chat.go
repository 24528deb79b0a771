package render

import (
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

const systemSeparator = "\n\n"

// renderMessages puts every non-message section into one leading system
// message, followed by the chat history in order.
func renderMessages(sections []Section) Messages {
	systemParts, history := split(sections)
	out := make(Messages, 0, len(history)+1)
	if len(systemParts) > 0 {
		out = append(out, model.Message{Role: model.RoleSystem, Content: strings.Join(systemParts, systemSeparator)})
	}
	return append(out, history...)
}

// renderAnthropic lifts system text, including system-role history
// entries, into the top-level system field.
func renderAnthropic(sections []Section) AnthropicPayload {
	systemParts, history := split(sections)
	p := AnthropicPayload{Messages: make([]model.Message, 0, len(history))}
	for _, m := range history {
		if m.Role == model.RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		p.Messages = append(p.Messages, m)
	}
	p.System = strings.Join(systemParts, systemSeparator)
	return p
}
