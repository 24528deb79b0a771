package render

import (
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

// Gemini roles.
const (
	GeminiRoleUser  = "user"
	GeminiRoleModel = "model"
)

func renderGemini(sections []Section, cfg Config) GeminiPayload {
	systemParts, history := split(sections)
	p := GeminiPayload{
		Contents:         make([]GeminiContent, 0, len(history)),
		GenerationConfig: cfg.MergedGenerationConfig(),
	}
	for _, m := range history {
		role := GeminiRoleUser
		switch m.Role {
		case model.RoleSystem:
			systemParts = append(systemParts, m.Content)
			continue
		case model.RoleAssistant, GeminiRoleModel:
			role = GeminiRoleModel
		}
		p.Contents = append(p.Contents, GeminiContent{Role: role, Parts: []GeminiPart{{Text: m.Content}}})
	}
	if len(systemParts) > 0 {
		p.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: strings.Join(systemParts, systemSeparator)}},
		}
	}
	return p
}
