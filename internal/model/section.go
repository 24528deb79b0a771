package model

import "strings"

// SectionType names a category of context content. Values are immutable and
// compare equal iff their names match, so they can be used as map keys.
type SectionType struct {
	name string
}

// NewSectionType returns the SectionType for name. Surrounding whitespace is
// dropped so "system" and " system " identify the same type.
func NewSectionType(name string) SectionType {
	return SectionType{name: strings.TrimSpace(name)}
}

// Name returns the canonical identifier.
func (t SectionType) Name() string { return t.name }

func (t SectionType) String() string { return t.name }

// IsZero reports whether t was never assigned a name.
func (t SectionType) IsZero() bool { return t.name == "" }

// Well-known section types.
var (
	System       = NewSectionType("system")
	Instructions = NewSectionType("instructions")
	Messages     = NewSectionType("messages")
	Tools        = NewSectionType("tools")
	MemoryHits   = NewSectionType("memory")
	OutputSchema = NewSectionType("output_schema")
)

// WellKnown lists the predefined section types in their conventional order.
func WellKnown() []SectionType {
	return []SectionType{System, Instructions, Messages, Tools, MemoryHits, OutputSchema}
}

// IsWellKnown reports whether t is one of the predefined types.
func IsWellKnown(t SectionType) bool {
	for _, w := range WellKnown() {
		if w == t {
			return true
		}
	}
	return false
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a chat-shaped section entry.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}
