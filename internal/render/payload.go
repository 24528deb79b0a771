package render

import (
	"encoding/json"

	"github.com/rcliao/agent-context/internal/model"
)

// Payload is one of TextPayload, Messages, AnthropicPayload or
// GeminiPayload.
type Payload interface {
	Format() Format
	isPayload()
}

// TextPayload is the tagged plain-text rendering.
type TextPayload struct {
	Text string
}

func (TextPayload) Format() Format { return FormatText }
func (TextPayload) isPayload()     {}

// MarshalJSON encodes the text as a bare JSON string.
func (p TextPayload) MarshalJSON() ([]byte, error) { return json.Marshal(p.Text) }

// Messages is a chat-completions style message list.
type Messages []model.Message

func (Messages) Format() Format { return FormatOpenAI }
func (Messages) isPayload()     {}

// AnthropicPayload has a top-level system prompt and no system-role
// messages.
type AnthropicPayload struct {
	System   string          `json:"system,omitempty"`
	Messages []model.Message `json:"messages"`
}

func (AnthropicPayload) Format() Format { return FormatAnthropic }
func (AnthropicPayload) isPayload()     {}

// GeminiPart is a text part of a Gemini content.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is one turn. Role is "user" or "model".
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPayload mirrors the generate_content request body.
type GeminiPayload struct {
	Contents          []GeminiContent `json:"contents"`
	SystemInstruction *GeminiContent  `json:"system_instruction,omitempty"`
	GenerationConfig  map[string]any  `json:"generation_config,omitempty"`
}

func (GeminiPayload) Format() Format { return FormatGemini }
func (GeminiPayload) isPayload()     {}

// SystemText returns the system instruction as plain text.
func (p GeminiPayload) SystemText() string {
	if p.SystemInstruction == nil {
		return ""
	}
	var s string
	for i, part := range p.SystemInstruction.Parts {
		if i > 0 {
			s += "\n"
		}
		s += part.Text
	}
	return s
}
