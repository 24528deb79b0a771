// Package render converts a resolved, budget-trimmed section list into a
// wire payload. Every adapter is a pure function of its input.
package render

import (
	"fmt"
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

// Format is the closed set of output shapes.
type Format string

const (
	FormatText      Format = "text"
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
	FormatGemini    Format = "gemini"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatText, FormatOpenAI, FormatAnthropic, FormatGemini}
}

// ParseFormat normalizes a caller-supplied name. "chat" and "messages"
// are accepted for the chat-message list.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "openai", "chat", "messages":
		return FormatOpenAI, nil
	case "anthropic", "claude":
		return FormatAnthropic, nil
	case "gemini", "google":
		return FormatGemini, nil
	}
	return "", fmt.Errorf("unsupported render format %q", s)
}

// Item is one resolved entry. Role is set for chat-shaped entries.
type Item struct {
	Text string
	Role string
}

// IsMessage reports whether the item carries a chat role.
func (i Item) IsMessage() bool { return i.Role != "" }

// Section is the resolved content of one section type, in insertion order.
type Section struct {
	Type  model.SectionType
	Items []Item
}

// Config carries per-render settings for envelope formats.
type Config struct {
	// GenerationConfig is the context default.
	GenerationConfig map[string]any
	// Override is shallow-merged over GenerationConfig.
	Override map[string]any
}

// MergedGenerationConfig returns base overlaid with override, or nil when
// both are empty.
func (c Config) MergedGenerationConfig() map[string]any {
	if len(c.GenerationConfig) == 0 && len(c.Override) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.GenerationConfig)+len(c.Override))
	for k, v := range c.GenerationConfig {
		out[k] = v
	}
	for k, v := range c.Override {
		out[k] = v
	}
	return out
}

// Render dispatches to the adapter for f.
func Render(f Format, sections []Section, cfg Config) (Payload, error) {
	switch f {
	case FormatText:
		return renderText(sections), nil
	case FormatOpenAI:
		return renderMessages(sections), nil
	case FormatAnthropic:
		return renderAnthropic(sections), nil
	case FormatGemini:
		return renderGemini(sections, cfg), nil
	}
	return nil, fmt.Errorf("unsupported render format %q", string(f))
}

// split separates chat messages from the text that belongs in a system
// prompt. System-section items are used verbatim; other sections are
// headed by "[name]".
func split(sections []Section) (systemParts []string, messages []model.Message) {
	for _, s := range sections {
		var plain []string
		for _, it := range s.Items {
			if it.IsMessage() {
				messages = append(messages, model.Message{Role: it.Role, Content: it.Text})
				continue
			}
			plain = append(plain, it.Text)
		}
		if len(plain) == 0 {
			continue
		}
		body := strings.Join(plain, "\n")
		if s.Type == model.System {
			systemParts = append(systemParts, body)
		} else {
			systemParts = append(systemParts, "["+s.Type.Name()+"]\n"+body)
		}
	}
	return systemParts, messages
}
