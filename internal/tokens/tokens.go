// Package tokens provides pluggable token counters for budget enforcement.
package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter counts the tokens in a piece of rendered text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// DefaultCharsPerToken is the rough English average most models land near.
const DefaultCharsPerToken = 4

// Heuristic estimates tokens from rune count. Non-empty text is never
// counted as zero so that tiny entries still carry weight in a budget.
type Heuristic struct {
	CharsPerToken int
}

// NewHeuristic returns a Heuristic with the default calibration.
func NewHeuristic() Heuristic {
	return Heuristic{CharsPerToken: DefaultCharsPerToken}
}

func (h Heuristic) Count(text string) int {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return 0
	}
	per := h.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(cleaned) / per
	if n < 1 {
		n = 1
	}
	return n
}

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding (e.g. "cl100k_base").
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokens: get encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// NewTiktokenForModel loads the encoding used by model.
func NewTiktokenForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tokens: encoding for model %q: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// New builds a counter by name: "heuristic" (default) or "tiktoken".
func New(name, encoding string) (Counter, error) {
	switch name {
	case "", "heuristic":
		return NewHeuristic(), nil
	case "tiktoken":
		return NewTiktoken(encoding)
	default:
		return nil, fmt.Errorf("tokens: unknown counter %q (valid: heuristic, tiktoken)", name)
	}
}
