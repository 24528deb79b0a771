package embedding

import (
	"context"
	"fmt"
)

// Settings selects and configures an embedder.
type Settings struct {
	Provider string // "ollama" | "openai" | "genai" | "" (disabled)
	Model    string
	URL      string
	APIKey   string
}

// New builds the embedder described by s. A nil Embedder with a nil error
// means embeddings are disabled and retrieval falls back to lexical matching.
func New(ctx context.Context, s Settings) (Embedder, error) {
	switch s.Provider {
	case "":
		return nil, nil
	case "ollama":
		return NewOllamaEmbedder(s.Model), nil
	case "openai":
		return NewOpenAIEmbedder(s.URL, s.APIKey, s.Model, 0), nil
	case "genai":
		return NewGenAIEmbedder(ctx, s.APIKey, s.Model)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q (valid: ollama, openai, genai)", s.Provider)
	}
}
